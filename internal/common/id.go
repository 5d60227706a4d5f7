package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique secure-session ID with the "sess_" prefix
// Format: sess_<uuid>
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}
