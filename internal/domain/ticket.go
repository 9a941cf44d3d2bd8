package domain

import (
	"strings"
	"time"
)

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

type Ticket struct {
	ID        string       `bson:"_id,omitempty" json:"id"`
	Email     string       `bson:"email" json:"email"`
	Subject   string       `bson:"subject" json:"subject"`
	Message   string       `bson:"message" json:"message"`
	Status    TicketStatus `bson:"status" json:"status"`
	CreatedAt time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `bson:"updated_at" json:"updatedAt"`
}

func NewTicket(email, subject, message string) (*Ticket, *ValidationError) {
	var verr ValidationError
	if !ValidEmail(email) {
		verr.Add("email", "must be a valid email address")
	}
	if strings.TrimSpace(subject) == "" {
		verr.Add("subject", "must not be empty")
	}
	if strings.TrimSpace(message) == "" {
		verr.Add("message", "must not be empty")
	}
	if verr.HasErrors() {
		return nil, &verr
	}
	return &Ticket{
		Email:   email,
		Subject: subject,
		Message: message,
		Status:  TicketStatusOpen,
	}, nil
}
