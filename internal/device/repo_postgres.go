package device

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists the single credentials row for this installation.
//
// Assumed table:
//   device_credentials (installation TEXT PRIMARY KEY, device_id TEXT, token TEXT)

const installationKey = "default"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Load(ctx context.Context) (Credentials, bool, error) {
	const q = `
SELECT device_id, token
FROM device_credentials
WHERE installation = $1
`
	var c Credentials
	if err := r.db.QueryRowContext(ctx, q, installationKey).Scan(&c.DeviceID, &c.Token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) Save(ctx context.Context, c Credentials) error {
	const q = `
INSERT INTO device_credentials (installation, device_id, token)
VALUES ($1,$2,$3)
ON CONFLICT (installation)
DO UPDATE SET device_id = EXCLUDED.device_id,
              token = EXCLUDED.token
`
	_, err := r.db.ExecContext(ctx, q, installationKey, c.DeviceID, c.Token)
	return err
}
