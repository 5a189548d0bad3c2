package pipeline

import (
	"regexp"
	"strings"

	"bidintake/internal"
)

var bidKeywordPattern = regexp.MustCompile(`(?i)bid|quotation|proposal|quote|tender|estimate`)

type DetectResult struct {
	IsBid   bool
	Keyword string
	Field   string
}

// DetectBid is a case-insensitive substring test over subject, then body.
// "bidding" and "quotes" count as hits.
func DetectBid(subject, body string) DetectResult {
	if kw := bidKeywordPattern.FindString(subject); kw != "" {
		return DetectResult{IsBid: true, Keyword: strings.ToLower(kw), Field: "subject"}
	}
	if kw := bidKeywordPattern.FindString(body); kw != "" {
		return DetectResult{IsBid: true, Keyword: strings.ToLower(kw), Field: "body"}
	}
	return DetectResult{}
}

func Classify(msg internal.RawMessage) internal.ClassifiedMessage {
	res := DetectBid(msg.Subject, msg.Body)
	return internal.ClassifiedMessage{RawMessage: msg, IsBidCandidate: res.IsBid, Keyword: res.Keyword}
}
