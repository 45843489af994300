// Package common defines shared constants and sentinel errors used across
// the chat core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrInternal          = errors.New("internal error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidToken      = errors.New("invalid session")
	ErrUsernameTaken     = errors.New("username taken")
	ErrValidation        = errors.New("validation error")
	ErrNotAMember        = errors.New("not a member")
	ErrInvitePending     = errors.New("invitation already pending")
	ErrInviteNotPending  = errors.New("invitation not pending")
	ErrDecryptionFailed  = errors.New("decryption failed")
)
