package ewc

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a persistable copy of the consolidation state: the
// parameter snapshot and the fused importance map, plus task bookkeeping.
type Checkpoint struct {
	// ID is the checkpoint identifier.
	ID string `json:"id"`

	// TaskCount is the number of tasks consolidated so far.
	TaskCount int `json:"taskCount"`

	// TaskClasses is the per-task class count, in sequence order.
	TaskClasses []int `json:"taskClasses"`

	// Snapshot holds the backbone parameter values frozen after the last
	// completed task.
	Snapshot *ParamMap `json:"snapshot"`

	// Importance is the fused Fisher importance map.
	Importance *ParamMap `json:"importance"`

	// Config is the configuration the state was built under.
	Config Config `json:"config"`

	// CreatedAt is when the checkpoint was taken.
	CreatedAt time.Time `json:"createdAt"`
}

// NewCheckpoint assembles a checkpoint with deep copies of both maps.
func NewCheckpoint(taskCount int, taskClasses []int, snapshot, importance *ParamMap, cfg Config) *Checkpoint {
	return &Checkpoint{
		ID:          uuid.New().String(),
		TaskCount:   taskCount,
		TaskClasses: append([]int(nil), taskClasses...),
		Snapshot:    snapshot.Clone(),
		Importance:  importance.Clone(),
		Config:      cfg,
		CreatedAt:   time.Now(),
	}
}
