package pipeline

import (
	"strings"
	"testing"
	"time"

	"bidintake/internal"
	"bidintake/internal/testutil"
)

func TestParsePlainText(t *testing.T) {
	raw := testutil.BuildMessage("Roof Masters <Sales@RoofMasters.example>", "Quotation for Roof Repair", "Our quote is ₹1,250.50 for the work")
	msg, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender != "sales@roofmasters.example" {
		t.Fatalf("sender=%q", msg.Sender)
	}
	if msg.SenderName != "Roof Masters" {
		t.Fatalf("name=%q", msg.SenderName)
	}
	if msg.Subject != "Quotation for Roof Repair" {
		t.Fatalf("subject=%q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "₹1,250.50") {
		t.Fatalf("body=%q", msg.Body)
	}
	if msg.Recipient != "bids@example.com" {
		t.Fatalf("recipient=%q", msg.Recipient)
	}
	if !msg.ReceivedAt.Equal(time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("received=%v", msg.ReceivedAt)
	}
}

func TestParseHTMLOnly(t *testing.T) {
	raw := "From: bidder@example.com\r\n" +
		"Subject: Tender response\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style></head><body><p>Price: $12,000</p><p>Deadline: 01/10/2025</p></body></html>\r\n"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.Body, "<p>") || strings.Contains(msg.Body, "color:red") {
		t.Fatalf("markup leaked into body: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "$12,000") || !strings.Contains(msg.Body, "Deadline: 01/10/2025") {
		t.Fatalf("body=%q", msg.Body)
	}
}

func TestParseMissingSender(t *testing.T) {
	raw := "Subject: Bid\r\n\r\nno sender here\r\n"
	_, err := Parse([]byte(raw))
	if !internal.IsParseError(err) {
		t.Fatalf("err=%v", err)
	}
}
