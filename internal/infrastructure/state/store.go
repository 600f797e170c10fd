// Package state persists consolidation checkpoints so the snapshot and
// importance map survive process restarts.
package state

import (
	"context"
	"fmt"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
)

// ErrStoreClosed is returned when a store is used after Close.
var ErrStoreClosed = fmt.Errorf("checkpoint store is closed")

// ErrNotFound is returned when no checkpoint matches.
var ErrNotFound = fmt.Errorf("checkpoint not found")

// Store persists consolidation checkpoints.
type Store interface {
	// SaveCheckpoint persists a checkpoint.
	SaveCheckpoint(ctx context.Context, cp *ewc.Checkpoint) error

	// LoadCheckpoint fetches a checkpoint by id.
	LoadCheckpoint(ctx context.Context, id string) (*ewc.Checkpoint, error)

	// LoadLatest fetches the most recently saved checkpoint.
	LoadLatest(ctx context.Context) (*ewc.Checkpoint, error)

	// ListCheckpoints returns summaries of all checkpoints, newest first.
	ListCheckpoints(ctx context.Context) ([]CheckpointSummary, error)

	// Close releases the underlying resources.
	Close() error
}

// CheckpointSummary is a checkpoint without its parameter payload.
type CheckpointSummary struct {
	ID        string `json:"id"`
	TaskCount int    `json:"taskCount"`
	CreatedAt int64  `json:"createdAt"`
}
