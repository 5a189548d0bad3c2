package pipeline

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"bidintake/internal"
	"bidintake/internal/util"
)

// Matcher pulls one typed value out of free text. Matchers are tried in
// order and the first hit wins.
type Matcher[T any] interface {
	Name() string
	TryExtract(text string) (T, bool)
}

func firstMatch[T any](matchers []Matcher[T], text string) (T, string, bool) {
	for _, m := range matchers {
		if v, ok := m.TryExtract(text); ok {
			return v, m.Name(), true
		}
	}
	var zero T
	return zero, "", false
}

const amountPattern = `(\d+(?:,\d{2,3})*(?:\.\d{1,2})?)`

type amountMatcher struct {
	name string
	re   *regexp.Regexp
}

func (m amountMatcher) Name() string { return m.name }

func (m amountMatcher) TryExtract(text string) (float64, bool) {
	for _, sm := range m.re.FindAllStringSubmatch(text, -1) {
		if v, err := util.ParseAmount(sm[1]); err == nil {
			return v, true
		}
	}
	return 0, false
}

type dueDateMatcher struct {
	name string
	re   *regexp.Regexp
}

func (m dueDateMatcher) Name() string { return m.name }

func (m dueDateMatcher) TryExtract(text string) (time.Time, bool) {
	for _, sm := range m.re.FindAllStringSubmatch(text, -1) {
		if t, err := util.ParseDayMonthYear(sm[1], sm[2], sm[3]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const datePattern = `(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`

var (
	valueMatchers = []Matcher[float64]{
		amountMatcher{name: "inr_prefix", re: regexp.MustCompile(`(?i)(?:₹|\binr\.?|\brs\.?)\s*` + amountPattern)},
		amountMatcher{name: "usd_prefix", re: regexp.MustCompile(`(?i)(?:\$|\busd\.?|\bdollars?)\s*` + amountPattern)},
		amountMatcher{name: "currency_suffix", re: regexp.MustCompile(`(?i)` + amountPattern + `\s*(?:₹|\$|inr\b|usd\b|rs\b\.?|rupees?\b|dollars?\b)`)},
	}

	dueDateMatchers = []Matcher[time.Time]{
		dueDateMatcher{name: "due_by", re: regexp.MustCompile(`(?i)\bdue\s+(?:by|on)\s+` + datePattern)},
		dueDateMatcher{name: "deadline", re: regexp.MustCompile(`(?i)\bdeadline\s*:?\s*` + datePattern)},
		dueDateMatcher{name: "submit_by", re: regexp.MustCompile(`(?i)\bsubmit\s+by\s+` + datePattern)},
	}

	labelKeywordPattern = regexp.MustCompile(`(?i)quotation|proposal|estimate|tender|quote|bid`)
)

const (
	projectIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	projectIDSuffix   = 5
	minLabelLength    = 3
)

type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

func (e *Extractor) Extract(msg internal.ClassifiedMessage) internal.ExtractedFields {
	fields := ExtractFields(msg.RawMessage)
	fields.ProjectID = e.NewProjectID()
	return fields
}

// ExtractFields fills everything except the project ID. Value and due date
// come from the body only; the subject feeds the label.
func ExtractFields(msg internal.RawMessage) internal.ExtractedFields {
	fields := internal.ExtractedFields{ProjectLabel: ProjectLabel(msg.Subject, msg.Sender)}
	if v, ok := ExtractValue(msg.Body); ok {
		fields.Value = util.FloatPtr(v)
	}
	if d, ok := ExtractDueDate(msg.Body); ok {
		fields.DueDate = util.TimePtr(d)
	}
	return fields
}

// ProjectLabel strips every bid keyword occurrence from the subject, including
// inside longer words. Labels shorter than
// three characters fall back to "Project from <sender>".
func ProjectLabel(subject, sender string) string {
	label := labelKeywordPattern.ReplaceAllString(subject, " ")
	label = strings.Trim(util.NormalizeSpaces(label), " -:|,.")
	if utf8.RuneCountInString(label) < minLabelLength {
		return "Project from " + sender
	}
	return label
}

func ExtractValue(text string) (float64, bool) {
	v, _, ok := firstMatch(valueMatchers, text)
	return v, ok
}

func ExtractDueDate(text string) (time.Time, bool) {
	d, _, ok := firstMatch(dueDateMatchers, text)
	return d, ok
}

// NewProjectID returns PROJ_<unix millis>_<5 base36 chars>.
func (e *Extractor) NewProjectID() string {
	suffix := make([]byte, projectIDSuffix)
	max := big.NewInt(int64(len(projectIDAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(e.now().UnixNano() % int64(len(projectIDAlphabet)))
		}
		suffix[i] = projectIDAlphabet[n.Int64()]
	}
	return fmt.Sprintf("PROJ_%d_%s", e.now().UnixMilli(), suffix)
}
