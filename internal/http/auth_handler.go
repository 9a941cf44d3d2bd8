package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
	"github.com/KachiAlex/kex/internal/service"
)

const googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type AuthHandler struct {
	auth       *service.AuthService
	oauth      *oauth2.Config // nil when Google login is not configured
	clientBase string
	timeout    time.Duration
}

func NewAuthHandler(auth *service.AuthService, oauth *oauth2.Config, clientBase string, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:       auth,
		oauth:      oauth,
		clientBase: clientBase,
		timeout:    timeout,
	}
}

type signupRequestDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponseDTO struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req signupRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, token, err := h.auth.Signup(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid signup payload", verr.Fields)
		case errors.Is(err, service.ErrEmailTaken):
			respondError(w, http.StatusConflict, "email_taken", "email already in use")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to sign up")
		}
		return
	}

	respondJSON(w, http.StatusOK, authResponseDTO{Token: token, User: user})
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req loginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, token, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	respondJSON(w, http.StatusOK, authResponseDTO{Token: token, User: user})
}

// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	claims := claimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	user, err := h.auth.Me(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// PATCH /api/auth/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	claims := claimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var update service.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := h.auth.UpdateProfile(ctx, claims.UserID, update)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GET /api/auth/google
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		respondError(w, http.StatusInternalServerError, "oauth_not_configured", "Google OAuth not configured")
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "login"
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
}

// GET /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.oauth == nil {
		respondError(w, http.StatusInternalServerError, "oauth_not_configured", "Google OAuth not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing code")
		return
	}

	oauthToken, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "oauth_exchange_failed", "token exchange failed")
		return
	}

	email, name, err := fetchGoogleUserinfo(ctx, h.oauth, oauthToken)
	if err != nil {
		respondError(w, http.StatusBadRequest, "oauth_userinfo_failed", "could not load Google profile")
		return
	}

	user, token, err := h.auth.LoginWithIdentity(ctx, email, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Google auth failed")
		return
	}

	redirect := fmt.Sprintf("%s/admin?token=%s&email=%s&name=%s",
		h.clientBase,
		url.QueryEscape(token),
		url.QueryEscape(user.Email),
		url.QueryEscape(user.Name),
	)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func fetchGoogleUserinfo(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (email, name string, err error) {
	client := cfg.Client(ctx, token)
	resp, err := client.Get(googleUserinfoURL)
	if err != nil {
		return "", "", fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read userinfo: %w", err)
	}

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", fmt.Errorf("parse userinfo: %w", err)
	}
	if info.Email == "" {
		return "", "", errors.New("no email in Google profile")
	}
	return info.Email, info.Name, nil
}
