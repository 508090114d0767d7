package model

// ItemState tracks where a batch item is in its lifecycle.
type ItemState string

const (
	// StateFetched: the message is in the batch but not yet analyzed.
	StateFetched ItemState = "fetched"

	// StateAnalyzed: a verdict has been recorded.
	StateAnalyzed ItemState = "analyzed"

	// StateReplied: the reply went out but the source message could not be
	// marked read. A later attempt only retries the mark-read.
	StateReplied ItemState = "replied"
)

// BatchItem is one message of the current batch with its optional verdict.
type BatchItem struct {
	Message  Message
	Verdict  *Verdict
	State    ItemState
	Position int
}

// Actionable reports whether the item carries a draft the user can send.
func (b BatchItem) Actionable() bool {
	return b.Verdict != nil && !b.Verdict.Failed()
}
