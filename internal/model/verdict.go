package model

// Importance is the score assigned to a message by the analysis job.
// Zero is reserved for failed analysis and is never a real score.
type Importance int

const (
	ImportanceFailed Importance = 0
	ImportanceMin    Importance = 1
	ImportanceMax    Importance = 5
)

// FailedSummary is the summary carried by every failure verdict.
const FailedSummary = "Analysis failed, problems communicating with OpenAI"

// Valid reports whether i is a real importance level (1..5).
func (i Importance) Valid() bool {
	return i >= ImportanceMin && i <= ImportanceMax
}

// Verdict is the structured analysis output for one message.
type Verdict struct {
	Importance Importance `json:"importance"`
	Summary    string     `json:"summary"`

	// DraftReply holds the suggested response. For a failed verdict it
	// carries the error detail instead.
	DraftReply string `json:"response"`
}

// Failed reports whether the verdict is the analysis-failed sentinel.
func (v Verdict) Failed() bool {
	return v.Importance == ImportanceFailed
}

// FailedVerdict builds the zero-importance verdict for a failed analysis.
func FailedVerdict(detail string) Verdict {
	if detail == "" {
		detail = FailedSummary
	}
	return Verdict{
		Importance: ImportanceFailed,
		Summary:    FailedSummary,
		DraftReply: detail,
	}
}
