package model

import "errors"

var (
	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTokenExpired = errors.New("token expired")

	// Write conflicts such as a duplicate division name
	ErrConflict = errors.New("conflict")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
