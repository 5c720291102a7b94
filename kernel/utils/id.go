package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a random UUIDv4 string. Used for runtime instance and
// devhost session ids, never for operation ids (those come from the table
// counter).
func GenerateID() string {
	return uuid.NewString()
}

// ShortID returns the first 8 characters of id for log output.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
