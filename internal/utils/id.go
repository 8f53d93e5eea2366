package utils

import "github.com/google/uuid"

// GenerateID returns a new random identifier, used for snapshot image keys
// and chat message correlation IDs.
func GenerateID() string {
	return uuid.NewString()
}
