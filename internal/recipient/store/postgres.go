package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	"aidreg/pkg/platform/sentinel"
	txcontext "aidreg/pkg/platform/tx"
)

const recipientColumns = `id, name, location, needs_assessment, verified, last_verified, registered_at, updated_at`

// PostgresStore persists the registry in PostgreSQL. Statements join the
// transaction found in context when there is one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, r *models.Recipient) error {
	if r == nil {
		return fmt.Errorf("recipient is required")
	}
	query := `
		INSERT INTO recipients (` + recipientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		r.ID.String(),
		r.Name,
		r.Location,
		r.NeedsAssessment,
		r.Verified,
		int64(r.LastVerified), //nolint:gosec // block heights fit in int64
		r.RegisteredAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("recipient %s: %w", r.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create recipient: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Recipient) error {
	if r == nil {
		return fmt.Errorf("recipient is required")
	}
	query := `
		UPDATE recipients
		SET name = $2, location = $3, needs_assessment = $4, verified = $5, last_verified = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		r.ID.String(),
		r.Name,
		r.Location,
		r.NeedsAssessment,
		r.Verified,
		int64(r.LastVerified), //nolint:gosec // block heights fit in int64
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recipient rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1`
	r, err := scanRecipient(txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, recipientID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find recipient by id: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error) {
	out := make(map[id.RecipientID]*models.Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, recipientID := range ids {
		keys[i] = recipientID.String()
	}
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = ANY($1)`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, q models.ListQuery) (*models.RecipientPage, error) {
	q = q.Normalized()
	var (
		where = []string{"id > $1"}
		args  = []any{q.After.String()}
	)
	if q.Verified != nil {
		args = append(args, *q.Verified)
		where = append(where, fmt.Sprintf("verified = $%d", len(args)))
	}
	args = append(args, q.Limit+1)
	query := fmt.Sprintf(`SELECT %s FROM recipients WHERE %s ORDER BY id ASC LIMIT $%d`,
		recipientColumns, strings.Join(where, " AND "), len(args))

	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	candidates := make([]*models.Recipient, 0, q.Limit+1)
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return pageFrom(candidates, q.Limit), nil
}

// Admin reads the admin row. Inside a transaction the row is locked so
// concurrent writers on other replicas queue behind this one.
func (s *PostgresStore) Admin(ctx context.Context) (id.Principal, error) {
	query := `SELECT principal FROM registry_admin WHERE singleton`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	var principal string
	err := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query).Scan(&principal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotInitialized
		}
		return "", fmt.Errorf("read admin: %w", err)
	}
	return id.Principal(principal), nil
}

func (s *PostgresStore) InitAdmin(ctx context.Context, p id.Principal) (id.Principal, error) {
	_, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_admin (singleton, principal, updated_at)
		VALUES (TRUE, $1, now())
		ON CONFLICT (singleton) DO NOTHING
	`, p.String())
	if err != nil {
		return "", fmt.Errorf("init admin: %w", err)
	}
	return s.Admin(ctx)
}

func (s *PostgresStore) SetAdmin(ctx context.Context, p id.Principal) error {
	_, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_admin (singleton, principal, updated_at)
		VALUES (TRUE, $1, now())
		ON CONFLICT (singleton) DO UPDATE SET principal = EXCLUDED.principal, updated_at = EXCLUDED.updated_at
	`, p.String())
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}

type recipientRow interface {
	Scan(dest ...any) error
}

func scanRecipient(row recipientRow) (*models.Recipient, error) {
	var (
		r            models.Recipient
		recipientID  string
		lastVerified int64
	)
	if err := row.Scan(&recipientID, &r.Name, &r.Location, &r.NeedsAssessment, &r.Verified, &lastVerified,
		&r.RegisteredAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RecipientID(recipientID)
	r.LastVerified = uint64(lastVerified) //nolint:gosec // column has a non-negative check
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
