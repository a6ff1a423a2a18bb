// Package uuid generates time-ordered identifiers for runs and edital rows.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings, which sort by creation time.
type Generator struct {
	newV7 func() (uuid.UUID, error)
}

// New creates a new Generator.
func New() *Generator {
	return &Generator{newV7: uuid.NewV7}
}

// NewID returns a UUIDv7 string.
func (g *Generator) NewID() (string, error) {
	id, err := g.newV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
