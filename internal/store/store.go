package store

import (
	"context"
	"errors"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// ErrNotFound is returned when an operation names a message that is not in
// the current batch.
var ErrNotFound = errors.New("batch item not found")

// Store holds the working batch for one interactive session. Nothing in it
// outlives the session.
type Store interface {
	// ReplaceBatch discards the current batch and records msgs in fetch order.
	ReplaceBatch(ctx context.Context, msgs []model.Message) error

	// Items returns the batch in fetch order.
	Items(ctx context.Context) ([]model.BatchItem, error)

	// Ranked returns the batch ordered by importance, highest first. Items
	// without a verdict sort last; ties keep fetch order.
	Ranked(ctx context.Context) ([]model.BatchItem, error)

	Get(ctx context.Context, id string) (*model.BatchItem, error)
	SetVerdict(ctx context.Context, id string, v model.Verdict) error
	SetState(ctx context.Context, id string, state model.ItemState) error

	// Delete removes exactly one item. It returns ErrNotFound if id is not
	// in the batch.
	Delete(ctx context.Context, id string) error

	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}
