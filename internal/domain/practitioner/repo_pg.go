package practitioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis/praxis/internal/platform/db"
)

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (r *directoryPG) Get(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	var p Practitioner
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT p.id, p.practice_id, p.display_name, p.active, pr.timezone
		FROM practitioners p
		JOIN practices pr ON pr.id = p.practice_id
		WHERE p.id = $1`, id).
		Scan(&p.ID, &p.PracticeID, &p.DisplayName, &p.Active, &p.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get practitioner %s: %w", id, err)
	}
	return &p, nil
}
