package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bidintake/internal"
	"bidintake/internal/config"
)

var ErrNotFound = errors.New("record not found")

// Store persists the records produced by an ingestion run. Create methods
// fill in missing IDs and timestamps and return the stored record.
type Store interface {
	CreateEmail(ctx context.Context, rec internal.EmailRecord) (internal.EmailRecord, error)
	FindContractorByEmail(ctx context.Context, email string) (*internal.Contractor, error)
	// CreateContractor inserts the contractor unless one with the same email
	// exists, and returns whichever row is stored.
	CreateContractor(ctx context.Context, c internal.Contractor) (internal.Contractor, error)
	CreateBid(ctx context.Context, rec internal.BidRecord) (internal.BidRecord, error)

	ListEmails(ctx context.Context, limit int) ([]internal.EmailRecord, error)
	ListContractors(ctx context.Context, limit int) ([]internal.Contractor, error)
	ListBids(ctx context.Context, filter BidFilter) ([]internal.BidRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

type BidFilter struct {
	Status       internal.BidStatus
	ContractorID string
	Limit        int
}

func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.DBPath)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func prepareEmail(rec internal.EmailRecord, now time.Time) internal.EmailRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = now
	}
	if rec.Attachments == nil {
		rec.Attachments = []string{}
	}
	return rec
}

func prepareContractor(c internal.Contractor, now time.Time) internal.Contractor {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Role == "" {
		c.Role = internal.RoleUser
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

func prepareBid(rec internal.BidRecord, now time.Time) internal.BidRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = internal.BidSubmitted
	}
	if rec.UserID == "" {
		rec.UserID = rec.ContractorID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
