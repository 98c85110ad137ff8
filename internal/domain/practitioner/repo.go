package practitioner

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("practitioner not found")

type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*Practitioner, error)
}
