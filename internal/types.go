package internal

import "time"

type Role string

const RoleUser Role = "USER"

type BidStatus string

const (
	BidSubmitted   BidStatus = "submitted"
	BidUnderReview BidStatus = "under_review"
	BidApproved    BidStatus = "approved"
	BidRejected    BidStatus = "rejected"
	BidAwarded     BidStatus = "awarded"
)

// FetchedMessage is an unread message as delivered by a mailbox provider,
// before any MIME decoding.
type FetchedMessage struct {
	Provider   string
	UID        string
	Folder     string
	ReceivedAt time.Time
	Raw        []byte
}

type RawMessage struct {
	Sender     string
	SenderName string
	Recipient  string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

type ClassifiedMessage struct {
	RawMessage
	IsBidCandidate bool
	Keyword        string
}

// ExtractedFields holds best-effort values pulled from a bid message.
// Value and DueDate are nil when no pattern matched.
type ExtractedFields struct {
	ProjectLabel string
	ProjectID    string
	Value        *float64
	DueDate      *time.Time
}

type Contractor struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	Credential  string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type EmailRecord struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Sender      string    `json:"from"`
	Recipient   string    `json:"to"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Attachments []string  `json:"attachments"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BidRecord struct {
	ID                string     `json:"id"`
	ProjectName       string     `json:"projectName"`
	ProjectID         string     `json:"projectId"`
	ContractorAddress string     `json:"contractor"`
	ContractorID      string     `json:"contractorId"`
	UserID            string     `json:"userId"`
	EmailID           string     `json:"emailId"`
	Value             *float64   `json:"bidAmount,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	Status            BidStatus  `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
