package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already in use")
	ErrVerificationFailed = errors.New("verification failed")
	ErrWebhookSignature   = errors.New("webhook signature mismatch")
	ErrUnknownProvider    = errors.New("unknown payment provider")
)
