package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"corebridge/process-service/internal/process"
)

// Directory resolves applications from the shared apply table owned by the
// application service.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory returns a Directory reading through pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// LookupApplication returns the posting and applicant of applicationID.
func (d *Directory) LookupApplication(ctx context.Context, applicationID int64) (int64, int64, error) {
	var postingID, applicantID int64
	err := d.pool.QueryRow(ctx,
		`SELECT jobposting_id, user_id FROM apply WHERE apply_id = $1`,
		applicationID,
	).Scan(&postingID, &applicantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, process.ErrApplicationNotFound
	}
	if err != nil {
		return 0, 0, process.Persistence("lookup application", err)
	}
	return postingID, applicantID, nil
}

var _ process.ApplicationDirectory = (*Directory)(nil)
