package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"bidintake/internal"
)

type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type emailRow struct {
	ID          string `db:"id"`
	Subject     string `db:"subject"`
	Body        string `db:"body"`
	Sender      string `db:"sender"`
	Recipient   string `db:"recipient"`
	ReceivedAt  string `db:"received_at"`
	Attachments string `db:"attachments"`
	CreatedAt   string `db:"created_at"`
}

type contractorRow struct {
	ID          string `db:"id"`
	Email       string `db:"email"`
	DisplayName string `db:"display_name"`
	Role        string `db:"role"`
	Credential  string `db:"credential"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

type bidRow struct {
	ID           string          `db:"id"`
	ProjectName  string          `db:"project_name"`
	ProjectID    string          `db:"project_id"`
	Contractor   string          `db:"contractor"`
	ContractorID string          `db:"contractor_id"`
	UserID       string          `db:"user_id"`
	EmailID      string          `db:"email_id"`
	BidAmount    sql.NullFloat64 `db:"bid_amount"`
	DueDate      sql.NullString  `db:"due_date"`
	Status       string          `db:"status"`
	CreatedAt    string          `db:"created_at"`
	UpdatedAt    string          `db:"updated_at"`
}

func (s *SQLiteStore) CreateEmail(ctx context.Context, rec internal.EmailRecord) (internal.EmailRecord, error) {
	rec = prepareEmail(rec, s.now())
	attachments, err := json.Marshal(rec.Attachments)
	if err != nil {
		return internal.EmailRecord{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (id, subject, body, sender, recipient, received_at, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Subject, rec.Body, rec.Sender, rec.Recipient,
		formatTime(rec.ReceivedAt), string(attachments), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return internal.EmailRecord{}, fmt.Errorf("inserting email: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) FindContractorByEmail(ctx context.Context, email string) (*internal.Contractor, error) {
	var row contractorRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, display_name, role, credential, created_at, updated_at
		FROM contractors WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying contractor: %w", err)
	}
	c, err := row.toContractor()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) CreateContractor(ctx context.Context, c internal.Contractor) (internal.Contractor, error) {
	c = prepareContractor(c, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contractors (id, email, display_name, role, credential, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		c.ID, c.Email, c.DisplayName, string(c.Role), c.Credential, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return internal.Contractor{}, fmt.Errorf("inserting contractor: %w", err)
	}
	stored, err := s.FindContractorByEmail(ctx, c.Email)
	if err != nil {
		return internal.Contractor{}, err
	}
	return *stored, nil
}

func (s *SQLiteStore) CreateBid(ctx context.Context, rec internal.BidRecord) (internal.BidRecord, error) {
	rec = prepareBid(rec, s.now())

	var amount sql.NullFloat64
	if rec.Value != nil {
		amount = sql.NullFloat64{Float64: *rec.Value, Valid: true}
	}
	var due sql.NullString
	if rec.DueDate != nil {
		due = sql.NullString{String: rec.DueDate.UTC().Format(dateLayout), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bids (
			id, project_name, project_id, contractor, contractor_id, user_id, email_id,
			bid_amount, due_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectName, rec.ProjectID, rec.ContractorAddress, rec.ContractorID, rec.UserID, rec.EmailID,
		amount, due, string(rec.Status), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return internal.BidRecord{}, fmt.Errorf("inserting bid: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListEmails(ctx context.Context, limit int) ([]internal.EmailRecord, error) {
	var rows []emailRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, subject, body, sender, recipient, received_at, attachments, created_at
		FROM emails ORDER BY created_at DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	out := make([]internal.EmailRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toEmail()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) ListContractors(ctx context.Context, limit int) ([]internal.Contractor, error) {
	var rows []contractorRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, email, display_name, role, credential, created_at, updated_at
		FROM contractors ORDER BY created_at DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing contractors: %w", err)
	}
	out := make([]internal.Contractor, 0, len(rows))
	for _, row := range rows {
		c, err := row.toContractor()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) ListBids(ctx context.Context, filter BidFilter) ([]internal.BidRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ContractorID != "" {
		where = append(where, "contractor_id = ?")
		args = append(args, filter.ContractorID)
	}

	query := `
		SELECT id, project_name, project_id, contractor, contractor_id, user_id, email_id,
		       bid_amount, due_date, status, created_at, updated_at
		FROM bids`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	var rows []bidRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	out := make([]internal.BidRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toBid()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r emailRow) toEmail() (internal.EmailRecord, error) {
	received, err := parseTime(r.ReceivedAt)
	if err != nil {
		return internal.EmailRecord{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return internal.EmailRecord{}, err
	}
	attachments := []string{}
	if r.Attachments != "" {
		if err := json.Unmarshal([]byte(r.Attachments), &attachments); err != nil {
			return internal.EmailRecord{}, fmt.Errorf("decoding attachments of email %s: %w", r.ID, err)
		}
	}
	return internal.EmailRecord{
		ID:          r.ID,
		Subject:     r.Subject,
		Body:        r.Body,
		Sender:      r.Sender,
		Recipient:   r.Recipient,
		ReceivedAt:  received,
		Attachments: attachments,
		CreatedAt:   created,
	}, nil
}

func (r contractorRow) toContractor() (internal.Contractor, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return internal.Contractor{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return internal.Contractor{}, err
	}
	return internal.Contractor{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Role:        internal.Role(r.Role),
		Credential:  r.Credential,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func (r bidRow) toBid() (internal.BidRecord, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return internal.BidRecord{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return internal.BidRecord{}, err
	}
	rec := internal.BidRecord{
		ID:                r.ID,
		ProjectName:       r.ProjectName,
		ProjectID:         r.ProjectID,
		ContractorAddress: r.Contractor,
		ContractorID:      r.ContractorID,
		UserID:            r.UserID,
		EmailID:           r.EmailID,
		Status:            internal.BidStatus(r.Status),
		CreatedAt:         created,
		UpdatedAt:         updated,
	}
	if r.BidAmount.Valid {
		v := r.BidAmount.Float64
		rec.Value = &v
	}
	if r.DueDate.Valid {
		due, err := time.Parse(dateLayout, r.DueDate.String)
		if err != nil {
			return internal.BidRecord{}, fmt.Errorf("decoding due date of bid %s: %w", r.ID, err)
		}
		rec.DueDate = &due
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding timestamp %q: %w", value, err)
	}
	return t, nil
}
