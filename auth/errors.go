package auth

import "errors"

var (
	ErrDuplicateCredential = errors.New("username already registered")
	ErrInvalidCredential   = errors.New("invalid username or password")
	ErrInvalidUsername     = errors.New("invalid username")
	ErrWeakPassword        = errors.New("password too short")
	ErrProviderAuth        = errors.New("federated login failed")
	ErrProviderDisabled    = errors.New("federated login not configured")
)
