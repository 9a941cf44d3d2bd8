// seedadmin provisions an admin account as an explicit one-time step.
// Admin identities are never created or mutated as a side effect of login.
//
//	ADMIN_EMAIL=ops@example.com ADMIN_PASSWORD=... go run ./cmd/seedadmin
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	kexauth "github.com/KachiAlex/kex/internal/auth"
	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

func main() {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := getEnv("ADMIN_NAME", "Administrator")
	if email == "" || password == "" {
		log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD are required")
	}
	if !domain.ValidEmail(email) {
		log.Fatalf("invalid admin email %q", email)
	}
	if len(password) < 6 {
		log.Fatal("ADMIN_PASSWORD must be at least 6 characters")
	}

	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDBName := getEnv("MONGO_DB_NAME", "kex")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := repository.ConnectMongoDB(ctx, mongoURI, mongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Client().Disconnect(ctx)

	users := repository.NewUserRepository(db)
	if err := users.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create user indexes: %v", err)
	}

	hash, err := kexauth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	admin := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	}
	err = users.Create(ctx, admin)
	if err == nil {
		log.Printf("admin account %s created", email)
		return
	}
	if !errors.Is(err, repository.ErrDuplicateEmail) {
		log.Fatalf("Failed to create admin: %v", err)
	}

	// Account exists; reset the password so the operator can recover access.
	if err := users.SetPasswordHash(ctx, email, hash); err != nil {
		log.Fatalf("Failed to reset admin password: %v", err)
	}
	log.Printf("admin account %s already existed, password reset", email)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
