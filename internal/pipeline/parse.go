package pipeline

import (
	"bytes"
	"net/mail"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"bidintake/internal"
	"bidintake/internal/util"
)

// Parse decodes one RFC 5322 message. The body is the plain-text part, or
// the visible text of the HTML part when no plain-text part exists.
func Parse(raw []byte) (internal.RawMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.RawMessage{}, &internal.ParseError{Reason: "malformed MIME", Err: err}
	}

	from, err := env.AddressList("From")
	if err != nil || len(from) == 0 || strings.TrimSpace(from[0].Address) == "" {
		return internal.RawMessage{}, &internal.ParseError{Reason: "missing sender address", Err: err}
	}

	msg := internal.RawMessage{
		Sender:     util.NormalizeEmail(from[0].Address),
		SenderName: strings.TrimSpace(from[0].Name),
		Subject:    strings.TrimSpace(env.GetHeader("Subject")),
		Body:       env.Text,
	}
	if env.HTML != "" && !hasPlainTextPart(env) {
		msg.Body = htmlToText(env.HTML)
	}
	if to, err := env.AddressList("To"); err == nil && len(to) > 0 {
		msg.Recipient = util.NormalizeEmail(to[0].Address)
	}
	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}
	return msg, nil
}

func hasPlainTextPart(env *enmime.Envelope) bool {
	if env.Root == nil {
		return false
	}
	part := env.Root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain" && p.Disposition != "attachment"
	})
	return part != nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style,head").Remove()
	var lines []string
	doc.Find("body").Contents().Each(func(_ int, node *goquery.Selection) {
		if line := util.NormalizeSpaces(node.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return util.NormalizeSpaces(doc.Text())
	}
	return strings.Join(lines, "\n")
}
