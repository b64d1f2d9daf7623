package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/pkg/platform/sentinel"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const verificationColumns = `id, full_name, email, id_type, id_value, loan_amount, kyc_level,
	is_blacklisted, bank_accounts, customer_id, status, mono_reference, raw_response,
	created_at, updated_at`

// PostgresStore persists verifications in PostgreSQL. Every value travels as a
// bind parameter.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed verification store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, v *models.Verification) error {
	query := `
		INSERT INTO verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.FullName, v.Email, string(v.IDType), v.IDValue, v.LoanAmount, string(v.KYCLevel),
		v.IsBlacklisted, v.BankAccounts, v.CustomerID, string(v.Status), v.MonoReference,
		nullableJSON(v.RawResponse), v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.Verification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE mono_reference = $1`, reference)
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification by reference: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, reference string, status models.Status, raw json.RawMessage, now time.Time) (*models.Verification, error) {
	query := `
		UPDATE verifications
		SET status = $2, raw_response = $3, updated_at = $4
		WHERE mono_reference = $1
		RETURNING ` + verificationColumns
	v, err := scanVerification(s.db.QueryRowContext(ctx, query, reference, string(status), nullableJSON(raw), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update verification status: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Transition(ctx context.Context, reference string, to models.Status, from []models.Status, raw json.RawMessage, customerID string, now time.Time) (*models.Verification, bool, error) {
	sources := make([]string, len(from))
	for i, st := range from {
		sources[i] = string(st)
	}
	query := `
		UPDATE verifications
		SET status = $2, raw_response = $3, updated_at = $4,
			customer_id = COALESCE(NULLIF($6::text, ''), customer_id)
		WHERE mono_reference = $1 AND status = ANY($5)
		RETURNING ` + verificationColumns
	v, err := scanVerification(s.db.QueryRowContext(ctx, query,
		reference, string(to), nullableJSON(raw), now, pq.Array(sources), customerID))
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("transition verification: %w", err)
	}

	// Guard failed or the reference is unknown; tell the two apart.
	current, err := s.FindByReference(ctx, reference)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.Verification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+verificationColumns+` FROM verifications ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var (
		v        models.Verification
		idType   string
		kycLevel string
		status   string
		raw      []byte
	)
	err := row.Scan(
		&v.ID, &v.FullName, &v.Email, &idType, &v.IDValue, &v.LoanAmount, &kycLevel,
		&v.IsBlacklisted, &v.BankAccounts, &v.CustomerID, &status, &v.MonoReference, &raw,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.IDType = models.IDType(idType)
	v.KYCLevel = models.KYCLevel(kycLevel)
	v.Status = models.Status(status)
	if len(raw) > 0 {
		v.RawResponse = json.RawMessage(raw)
	}
	return &v, nil
}

// nullableJSON maps an empty payload to SQL NULL. Payloads go over as text
// because lib/pq encodes []byte as bytea. The column is JSON, so the stored
// text is byte-for-byte what the provider sent.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
