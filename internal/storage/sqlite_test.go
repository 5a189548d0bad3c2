package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bidintake/internal"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	received := time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)
	email, err := s.CreateEmail(ctx, internal.EmailRecord{
		Subject:    "Quotation for Roof Repair",
		Body:       "Our quote is ₹1,250.50",
		Sender:     "roofer@example.com",
		Recipient:  "bids@example.com",
		ReceivedAt: received,
	})
	if err != nil {
		t.Fatal(err)
	}
	if email.ID == "" || email.Attachments == nil {
		t.Fatalf("email not prepared: %+v", email)
	}

	contractor, err := s.CreateContractor(ctx, internal.Contractor{Email: "roofer@example.com", DisplayName: "roofer", Credential: "hash"})
	if err != nil {
		t.Fatal(err)
	}
	if contractor.Role != internal.RoleUser {
		t.Fatalf("role=%q", contractor.Role)
	}

	value := 1250.5
	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	bid, err := s.CreateBid(ctx, internal.BidRecord{
		ProjectName:       "for Roof Repair",
		ProjectID:         "PROJ_1_abcde",
		ContractorAddress: contractor.Email,
		ContractorID:      contractor.ID,
		EmailID:           email.ID,
		Value:             &value,
		DueDate:           &due,
	})
	if err != nil {
		t.Fatal(err)
	}
	if bid.Status != internal.BidSubmitted || bid.UserID != contractor.ID {
		t.Fatalf("bid not prepared: %+v", bid)
	}

	bids, err := s.ListBids(ctx, BidFilter{Status: internal.BidSubmitted})
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 {
		t.Fatalf("bids=%d", len(bids))
	}
	got := bids[0]
	if got.Value == nil || *got.Value != value {
		t.Fatalf("value=%v", got.Value)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due=%v", got.DueDate)
	}

	emails, err := s.ListEmails(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(emails) != 1 || !emails[0].ReceivedAt.Equal(received) || len(emails[0].Attachments) != 0 {
		t.Fatalf("emails=%+v", emails)
	}
}

func TestSQLiteNullableBidFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	email, err := s.CreateEmail(ctx, internal.EmailRecord{Subject: "Bid", Sender: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.CreateContractor(ctx, internal.Contractor{Email: "a@example.com", DisplayName: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBid(ctx, internal.BidRecord{ProjectName: "Project from a@example.com", ProjectID: "PROJ_2_zzzzz", ContractorAddress: c.Email, ContractorID: c.ID, EmailID: email.ID}); err != nil {
		t.Fatal(err)
	}

	bids, err := s.ListBids(ctx, BidFilter{ContractorID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 || bids[0].Value != nil || bids[0].DueDate != nil {
		t.Fatalf("bids=%+v", bids)
	}

	other, err := s.ListBids(ctx, BidFilter{Status: internal.BidAwarded})
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("status filter leaked %d bids", len(other))
	}
}

func TestSQLiteCreateContractorKeepsFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.CreateContractor(ctx, internal.Contractor{Email: "dup@example.com", DisplayName: "first"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateContractor(ctx, internal.Contractor{Email: "dup@example.com", DisplayName: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.DisplayName != "first" {
		t.Fatalf("second insert replaced the first: %+v", second)
	}

	all, err := s.ListContractors(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("contractors=%d", len(all))
	}
}

func TestSQLiteFindContractorNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.FindContractorByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestSQLiteBidRequiresEmail(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c, err := s.CreateContractor(ctx, internal.Contractor{Email: "a@example.com", DisplayName: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBid(ctx, internal.BidRecord{ProjectName: "x", ProjectID: "PROJ_3_aaaaa", ContractorID: c.ID, EmailID: "missing"}); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestSQLiteReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bids.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateEmail(context.Background(), internal.EmailRecord{Subject: "Tender", Sender: "t@example.com"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	emails, err := s.ListEmails(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(emails) != 1 {
		t.Fatalf("emails=%d", len(emails))
	}
}

func TestSQLiteAllowsRepeatedProjectID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c, err := s.CreateContractor(ctx, internal.Contractor{Email: "a@example.com", DisplayName: "a"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		email, err := s.CreateEmail(ctx, internal.EmailRecord{Subject: "Bid", Sender: c.Email})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.CreateBid(ctx, internal.BidRecord{ProjectName: "Hall", ProjectID: "PROJ_1_same0", ContractorAddress: c.Email, ContractorID: c.ID, EmailID: email.ID}); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
	}
	bids, err := s.ListBids(ctx, BidFilter{ContractorID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 2 {
		t.Fatalf("bids=%d", len(bids))
	}
}
