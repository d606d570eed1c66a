package core

import (
	"strings"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks ids generated while the remote store was unreachable.
const PlaceholderPrefix = "local_"

// NewPlaceholderID returns a locally generated id that is recognizable as such.
func NewPlaceholderID() string {
	return PlaceholderPrefix + uuid.NewString()
}

// IsPlaceholderID reports whether id was generated offline.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
