package mpbody

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const boundaryPrefix = "formship-"

// randomBoundary returns a fresh boundary built from a random UUID.
// Collisions with payload bytes are not checked.
func randomBoundary() string {
	return boundaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validateBoundary checks the RFC 2046 section 5.1.1 grammar:
// 1 to 70 bchars, not ending in a space.
func validateBoundary(boundary string) error {
	if len(boundary) < 1 || len(boundary) > 70 {
		return fmt.Errorf("%w: boundary length %d outside 1..70", ErrInvalidArgument, len(boundary))
	}
	end := len(boundary) - 1
	for i, b := range boundary {
		if 'A' <= b && b <= 'Z' || 'a' <= b && b <= 'z' || '0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '\'', '(', ')', '+', '_', ',', '-', '.', '/', ':', '=', '?':
			continue
		case ' ':
			if i != end {
				continue
			}
		}
		return fmt.Errorf("%w: invalid boundary character %q", ErrInvalidArgument, b)
	}
	return nil
}
