package utils

import "github.com/google/uuid"

// NewID returns a new opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}
