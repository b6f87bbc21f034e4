// Package report encodes a completed assessment into a compact URL-safe
// token for the read-only "scan completed report" view, and decodes it
// back. Encode and Decode round-trip exactly for every valid assessment,
// including non-ASCII (Tamil) content.
package report

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/risk"
)

// ErrMalformedToken is returned for anything Decode cannot reconstruct.
// Hosts show a "report unavailable" message; decoding never panics.
var ErrMalformedToken = errors.New("malformed report token")

// Version is the current token schema version.
const Version = 1

const tokenPrefix = "KNR1."

// Report is the decoded token payload. Answers holds the option values in
// question-set slot order; a question that was hidden or skipped is an
// empty string, so positions stay aligned with the versioned question set.
type Report struct {
	Version  int           `json:"v"`
	Code     string        `json:"code"`
	IssuedAt int64         `json:"ts"` // unix seconds
	Zone     risk.Zone     `json:"zone"`
	Language flow.Language `json:"lang"`
	Answers  []string      `json:"answers"`
}

// Time returns the issue timestamp.
func (r Report) Time() time.Time { return time.Unix(r.IssuedAt, 0).UTC() }

// New builds a report from an assessment outcome, flattening the answer
// set into slot order.
func New(a risk.Assessment, answers flow.AnswerSet, lang flow.Language, questions []flow.Question) Report {
	ordered := make([]string, len(questions))
	for i, q := range questions {
		ordered[i] = answers[q.ID]
	}
	return Report{
		Version:  Version,
		Code:     a.PriorityCode,
		IssuedAt: a.CreatedAt.Unix(),
		Zone:     a.Zone,
		Language: lang,
		Answers:  ordered,
	}
}

// AnswerSet rebuilds the id-keyed answers against the given question set.
func (r Report) AnswerSet(questions []flow.Question) flow.AnswerSet {
	out := flow.AnswerSet{}
	for i, q := range questions {
		if i < len(r.Answers) && r.Answers[i] != "" {
			out[q.ID] = r.Answers[i]
		}
	}
	return out
}

// Encode serializes the report to its transportable token form.
func Encode(r Report) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode reconstructs a report from its token form.
func Decode(token string) (Report, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(token), tokenPrefix)
	if !ok || body == "" {
		return Report{}, ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if r.Version != Version {
		return Report{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedToken, r.Version)
	}
	if _, err := risk.ParseZone(string(r.Zone)); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return r, nil
}
