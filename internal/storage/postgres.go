package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidintake/internal"
)

// PostgresStore is the shared-database alternative to SQLiteStore, for
// deployments that run more than one ingestion process.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure bid schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateEmail(ctx context.Context, rec internal.EmailRecord) (internal.EmailRecord, error) {
	rec = prepareEmail(rec, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO emails (id, subject, body, sender, recipient, received_at, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Subject, rec.Body, rec.Sender, rec.Recipient, rec.ReceivedAt, rec.Attachments, rec.CreatedAt)
	if err != nil {
		return internal.EmailRecord{}, fmt.Errorf("inserting email: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindContractorByEmail(ctx context.Context, email string) (*internal.Contractor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, credential, created_at, updated_at
		FROM contractors WHERE email = $1
	`, email)
	c, err := scanContractor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying contractor: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateContractor(ctx context.Context, c internal.Contractor) (internal.Contractor, error) {
	c = prepareContractor(c, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contractors (id, email, display_name, role, credential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
	`, c.ID, c.Email, c.DisplayName, string(c.Role), c.Credential, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return internal.Contractor{}, fmt.Errorf("inserting contractor: %w", err)
	}
	stored, err := s.FindContractorByEmail(ctx, c.Email)
	if err != nil {
		return internal.Contractor{}, err
	}
	return *stored, nil
}

func (s *PostgresStore) CreateBid(ctx context.Context, rec internal.BidRecord) (internal.BidRecord, error) {
	rec = prepareBid(rec, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bids (
			id, project_name, project_id, contractor, contractor_id, user_id, email_id,
			bid_amount, due_date, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.ProjectName, rec.ProjectID, rec.ContractorAddress, rec.ContractorID, rec.UserID, rec.EmailID,
		rec.Value, rec.DueDate, string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return internal.BidRecord{}, fmt.Errorf("inserting bid: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListEmails(ctx context.Context, limit int) ([]internal.EmailRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject, body, sender, recipient, received_at, attachments, created_at
		FROM emails ORDER BY created_at DESC LIMIT $1
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	defer rows.Close()

	var out []internal.EmailRecord
	for rows.Next() {
		var rec internal.EmailRecord
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Body, &rec.Sender, &rec.Recipient,
			&rec.ReceivedAt, &rec.Attachments, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning email: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListContractors(ctx context.Context, limit int) ([]internal.Contractor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, display_name, role, credential, created_at, updated_at
		FROM contractors ORDER BY created_at DESC LIMIT $1
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing contractors: %w", err)
	}
	defer rows.Close()

	var out []internal.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contractor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListBids(ctx context.Context, filter BidFilter) ([]internal.BidRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ContractorID != "" {
		args = append(args, filter.ContractorID)
		where = append(where, fmt.Sprintf("contractor_id = $%d", len(args)))
	}

	query := `
		SELECT id, project_name, project_id, contractor, contractor_id, user_id, email_id,
		       bid_amount, due_date, status, created_at, updated_at
		FROM bids`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	defer rows.Close()

	var out []internal.BidRecord
	for rows.Next() {
		var (
			rec    internal.BidRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectName, &rec.ProjectID, &rec.ContractorAddress,
			&rec.ContractorID, &rec.UserID, &rec.EmailID, &rec.Value, &rec.DueDate,
			&status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		rec.Status = internal.BidStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanContractor(row pgx.Row) (internal.Contractor, error) {
	var (
		c    internal.Contractor
		role string
	)
	err := row.Scan(&c.ID, &c.Email, &c.DisplayName, &role, &c.Credential, &c.CreatedAt, &c.UpdatedAt)
	c.Role = internal.Role(role)
	return c, err
}
