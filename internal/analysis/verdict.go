package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/validator.v2"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// verdictPayload is the JSON object the assistant is instructed to return.
// Pointer fields distinguish a missing key from a zero value.
type verdictPayload struct {
	Importance *int    `json:"importance"`
	Summary    *string `json:"summary"`
	Response   *string `json:"response"`
}

type verdictSchema struct {
	Importance int    `validate:"min=1,max=5"`
	Summary    string `validate:"nonzero"`
	Response   string
}

// ParseVerdict decodes the assistant's final text strictly: a single JSON
// object with exactly the keys importance (1..5), summary (non-empty) and
// response. Anything else is an error.
func ParseVerdict(raw string) (model.Verdict, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()

	var p verdictPayload
	if err := dec.Decode(&p); err != nil {
		return model.Verdict{}, fmt.Errorf("decoding verdict: %w", err)
	}
	if dec.More() {
		return model.Verdict{}, errors.New("decoding verdict: trailing data after object")
	}

	var missing []string
	if p.Importance == nil {
		missing = append(missing, "importance")
	}
	if p.Summary == nil {
		missing = append(missing, "summary")
	}
	if p.Response == nil {
		missing = append(missing, "response")
	}
	if len(missing) > 0 {
		return model.Verdict{}, fmt.Errorf("decoding verdict: missing %s", strings.Join(missing, ", "))
	}

	s := verdictSchema{
		Importance: *p.Importance,
		Summary:    strings.TrimSpace(*p.Summary),
		Response:   *p.Response,
	}
	if err := validator.Validate(s); err != nil {
		return model.Verdict{}, fmt.Errorf("validating verdict: %w", err)
	}

	return model.Verdict{
		Importance: model.Importance(s.Importance),
		Summary:    s.Summary,
		DraftReply: s.Response,
	}, nil
}

// parseFailure is the verdict for output that could not be parsed.
func parseFailure(raw string) model.Verdict {
	return model.FailedVerdict("Failed to parse: " + raw)
}

// compact trims a raw reply for logging.
func compact(raw string) string {
	var buf bytes.Buffer
	if json.Compact(&buf, []byte(raw)) == nil {
		raw = buf.String()
	}
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return raw
}
