package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random compact identifier (uuid v4 without dashes).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
