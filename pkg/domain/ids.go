package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns "<prefix>_" followed by eight random hex characters.
func NewID(prefix string) string {
	if prefix == "" {
		prefix = "id"
	}
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}
