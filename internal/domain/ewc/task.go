package ewc

import (
	"time"

	"github.com/google/uuid"
)

// Task describes one task in the incremental sequence.
type Task struct {
	// ID is the unique task identifier.
	ID string `json:"id"`

	// Index is the position t in the task sequence, starting at 0.
	Index int `json:"index"`

	// Name is a human-readable label.
	Name string `json:"name,omitempty"`

	// Classes is the number of classes introduced by this task.
	Classes int `json:"classes"`

	// TrainLoss is the final training loss.
	TrainLoss float64 `json:"trainLoss"`

	// ValLoss is the best validation loss reached.
	ValLoss float64 `json:"valLoss"`

	// CompletedAt is when post-processing finished.
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// NewTask creates a task record for sequence position t.
func NewTask(t, classes int, name string) *Task {
	return &Task{
		ID:      uuid.New().String(),
		Index:   t,
		Name:    name,
		Classes: classes,
	}
}
