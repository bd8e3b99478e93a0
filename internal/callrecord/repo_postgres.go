package callrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresRepo persists call records via database/sql (pgx stdlib driver).
//
// Assumed table:
//   call_records (call_id TEXT PRIMARY KEY, phone_number TEXT, duration_seconds INT,
//                 recording_ref TEXT, owner_identity TEXT, end_timestamp BIGINT,
//                 status TEXT, customer_name TEXT, outcome TEXT, remarks TEXT,
//                 follow_up_date BIGINT, product_quantities JSONB,
//                 needs_branding BOOLEAN, reason_for_loss TEXT, distributor TEXT)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Upsert(ctx context.Context, rec CallRecord) error {
	if rec.CallID == "" {
		return ErrInvalidRecord
	}
	quantities, err := marshalQuantities(rec.ProductQuantities)
	if err != nil {
		return fmt.Errorf("callrecord: encode product quantities: %w", err)
	}

	const q = `
INSERT INTO call_records (
  call_id, phone_number, duration_seconds, recording_ref, owner_identity,
  end_timestamp, status, customer_name, outcome, remarks, follow_up_date,
  product_quantities, needs_branding, reason_for_loss, distributor
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (call_id)
DO UPDATE SET phone_number = EXCLUDED.phone_number,
              duration_seconds = EXCLUDED.duration_seconds,
              recording_ref = EXCLUDED.recording_ref,
              owner_identity = EXCLUDED.owner_identity,
              end_timestamp = EXCLUDED.end_timestamp,
              status = EXCLUDED.status,
              customer_name = EXCLUDED.customer_name,
              outcome = EXCLUDED.outcome,
              remarks = EXCLUDED.remarks,
              follow_up_date = EXCLUDED.follow_up_date,
              product_quantities = EXCLUDED.product_quantities,
              needs_branding = EXCLUDED.needs_branding,
              reason_for_loss = EXCLUDED.reason_for_loss,
              distributor = EXCLUDED.distributor
`
	_, err = r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.PhoneNumber,
		rec.DurationSeconds,
		rec.RecordingRef,
		rec.OwnerIdentity,
		rec.EndTimestamp,
		rec.Status,
		rec.CustomerName,
		rec.Outcome,
		rec.Remarks,
		rec.FollowUpDate,
		quantities,
		rec.NeedsBranding,
		rec.ReasonForLoss,
		rec.Distributor,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	const q = selectColumns + `
WHERE call_id = $1
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) GetAll(ctx context.Context) ([]CallRecord, error) {
	const q = selectColumns + `
ORDER BY end_timestamp DESC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectColumns = `
SELECT call_id, phone_number, duration_seconds, recording_ref, owner_identity,
       end_timestamp, status, customer_name, outcome, remarks, follow_up_date,
       product_quantities, needs_branding, reason_for_loss, distributor
FROM call_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var quantities sql.NullString
	if err := row.Scan(
		&rec.CallID,
		&rec.PhoneNumber,
		&rec.DurationSeconds,
		&rec.RecordingRef,
		&rec.OwnerIdentity,
		&rec.EndTimestamp,
		&rec.Status,
		&rec.CustomerName,
		&rec.Outcome,
		&rec.Remarks,
		&rec.FollowUpDate,
		&quantities,
		&rec.NeedsBranding,
		&rec.ReasonForLoss,
		&rec.Distributor,
	); err != nil {
		return CallRecord{}, err
	}
	if quantities.Valid && quantities.String != "" && quantities.String != "null" {
		if err := json.Unmarshal([]byte(quantities.String), &rec.ProductQuantities); err != nil {
			return CallRecord{}, fmt.Errorf("callrecord: decode product quantities: %w", err)
		}
	}
	return rec, nil
}

func marshalQuantities(m map[string]int) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
