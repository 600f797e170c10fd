// Package ewc orchestrates elastic weight consolidation across a task
// sequence: exemplar-augmented training, importance estimation and
// snapshot bookkeeping around the generic training loop.
package ewc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BoyuanWangMust/ATTAC/internal/application/training"
	domainEWC "github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/exemplars"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/neural"
	infraNN "github.com/BoyuanWangMust/ATTAC/internal/infrastructure/nn"
)

// Stats aggregates approach-level counters across the task sequence.
type Stats struct {
	// TasksTrained is the number of completed tasks.
	TasksTrained int `json:"tasksTrained"`

	// TotalEpochs is the summed epoch count over all tasks.
	TotalEpochs int `json:"totalEpochs"`

	// TotalRegularization is the cumulative penalty over all batches.
	TotalRegularization float64 `json:"totalRegularization"`

	// LastAlpha is the fusion weight applied at the last consolidation.
	LastAlpha float64 `json:"lastAlpha"`
}

// EvalResult reports per-task evaluation.
type EvalResult struct {
	// Loss is the mean cross-entropy of head t on task-local targets.
	Loss float64 `json:"loss"`

	// TaskAwareAcc is accuracy when the task identity is given.
	TaskAwareAcc float64 `json:"taskAwareAcc"`

	// TaskAgnosticAcc is accuracy over all concatenated heads.
	TaskAgnosticAcc float64 `json:"taskAgnosticAcc"`
}

// Approach ties the consolidation pieces together. It owns the parameter
// snapshot and the fused importance map; both are mutated only between
// tasks, and task processing is strictly sequential per model instance.
type Approach struct {
	mu    sync.Mutex
	busy  bool
	model nn.Model

	cfg         domainEWC.Config
	trainer     *training.Trainer
	estimator   *neural.FisherEstimator
	accumulator *neural.FisherAccumulator
	exemplars   *exemplars.Store

	snapshot *domainEWC.ParamMap
	fisher   *domainEWC.ParamMap

	tasks []*domainEWC.Task
	stats Stats
}

// New creates an approach bound to a model. The snapshot is initialized
// to the model's current backbone values and the importance map to zero,
// before any task trains.
func New(m nn.Model, cfg domainEWC.Config, trainerCfg training.Config, store *exemplars.Store) *Approach {
	backbone := m.BackboneParameters()
	return &Approach{
		model:       m,
		cfg:         cfg,
		trainer:     training.NewTrainer(trainerCfg),
		estimator:   neural.NewFisherEstimator(cfg, 1),
		accumulator: neural.NewFisherAccumulator(cfg.Alpha),
		exemplars:   store,
		snapshot:    domainEWC.FromParameters(backbone),
		fisher:      domainEWC.ZerosLike(backbone),
	}
}

// SetProgress installs a per-epoch progress callback on the inner loop.
func (a *Approach) SetProgress(fn func(epoch int, trainLoss, valLoss float64)) {
	a.trainer.SetProgress(fn)
}

// TrainTask trains task t and consolidates afterwards: exemplar merge,
// generic training loop with the regularized criterion, snapshot refresh,
// Fisher estimation and fusion, exemplar collection. Not reentrant.
func (a *Approach) TrainTask(ctx context.Context, t int, trn, val *data.Loader) error {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return fmt.Errorf("task %d rejected: a task is already training", t)
	}
	if t != len(a.model.TaskClasses())-1 || t != a.stats.TasksTrained {
		a.mu.Unlock()
		return fmt.Errorf("task index %d out of sequence: %d tasks trained, %d heads attached",
			t, a.stats.TasksTrained, len(a.model.TaskClasses()))
	}
	a.busy = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	backbone := a.model.BackboneParameters()
	if err := a.snapshot.CheckParity(backbone); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := a.fisher.CheckParity(backbone); err != nil {
		return fmt.Errorf("importance map: %w", err)
	}

	task := domainEWC.NewTask(t, a.model.TaskClasses()[t], fmt.Sprintf("task-%d", t))

	// Exemplar merge: interleave stored exemplars with this task's data,
	// reshuffled under the original loader's batching configuration.
	loader := trn
	if t > 0 && a.exemplars.Len() > 0 {
		loader = trn.WithDataset(data.Concat(trn.Dataset(), a.exemplars.Dataset()))
	}

	params := a.selectTrainableParams(a.exemplars.Len() > 0)
	res, err := a.trainer.Train(ctx, a.model, params, loader, val, &taskCriterion{a: a, t: t})
	if err != nil {
		return fmt.Errorf("task %d training: %w", t, err)
	}
	task.TrainLoss = res.FinalTrainLoss
	task.ValLoss = res.BestValLoss
	a.mu.Lock()
	a.stats.TotalEpochs += res.EpochsRun
	a.mu.Unlock()

	if err := a.postTrainProcess(t, loader); err != nil {
		return err
	}

	task.CompletedAt = time.Now()
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.stats.TasksTrained++
	a.mu.Unlock()
	return nil
}

// selectTrainableParams decides the optimizer's parameter set once per
// task: without exemplars, previously trained heads stay frozen and only
// the backbone plus the newest head move; with exemplars every parameter
// trains.
func (a *Approach) selectTrainableParams(hasExemplars bool) []*nn.Parameter {
	heads := len(a.model.TaskClasses())
	if !hasExemplars && heads > 1 {
		params := a.model.BackboneParameters()
		return append(params, a.model.HeadParameters(heads-1)...)
	}
	return a.model.Parameters()
}

// postTrainProcess refreshes the snapshot from the post-task parameters,
// estimates Fisher information on the (possibly augmented) stream, fuses
// it into the persisted importance map and updates stored exemplars.
func (a *Approach) postTrainProcess(t int, loader *data.Loader) error {
	// Estimation only reads the weights, so it can run outside the lock;
	// the snapshot refresh afterwards sees the same values.
	current, err := a.estimator.Estimate(a.model, loader)
	if err != nil {
		return fmt.Errorf("task %d fisher estimation: %w", t, err)
	}
	taskClasses := a.model.TaskClasses()

	a.mu.Lock()
	a.snapshot = domainEWC.FromParameters(a.model.BackboneParameters())
	if err := a.accumulator.Fuse(a.fisher, current, t, taskClasses); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("task %d fisher fusion: %w", t, err)
	}
	a.stats.LastAlpha = a.accumulator.EffectiveAlpha(t, taskClasses)
	a.mu.Unlock()

	a.exemplars.CollectExemplars(a.model, loader)
	return nil
}

// Eval evaluates the model on task t's data, reporting both task-aware
// accuracy (head t given) and task-agnostic accuracy (arg-max across all
// heads).
func (a *Approach) Eval(t int, loader *data.Loader) *EvalResult {
	a.model.Eval()
	offsets := a.model.TaskOffsets()

	res := &EvalResult{}
	var total, hitsAware, hitsAgnostic float64
	var lossSum float64
	batches := 0

	for batch := range loader.Batches() {
		outputs, _ := a.model.Forward(batch.Inputs)
		concat := outputs.Concat()
		shifted := a.shiftTargets(t, batch.Labels)

		lossSum += infraNN.CrossEntropy(outputs[t], shifted)
		batches++

		for i, y := range batch.Labels {
			if infraNN.ArgMax(outputs[t][i])+offsets[t] == y {
				hitsAware++
			}
			if infraNN.ArgMax(concat[i]) == y {
				hitsAgnostic++
			}
			total++
		}
	}

	if batches > 0 {
		res.Loss = lossSum / float64(batches)
	}
	if total > 0 {
		res.TaskAwareAcc = hitsAware / total
		res.TaskAgnosticAcc = hitsAgnostic / total
	}
	return res
}

// Snapshot returns a copy of the frozen parameter snapshot.
func (a *Approach) Snapshot() *domainEWC.ParamMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.Clone()
}

// Importance returns a copy of the fused importance map.
func (a *Approach) Importance() *domainEWC.ParamMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fisher.Clone()
}

// Tasks returns the completed task records.
func (a *Approach) Tasks() []*domainEWC.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*domainEWC.Task, len(a.tasks))
	copy(out, a.tasks)
	return out
}

// Stats returns the aggregated counters.
func (a *Approach) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// CreateCheckpoint captures the consolidation state for persistence.
func (a *Approach) CreateCheckpoint() *domainEWC.Checkpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domainEWC.NewCheckpoint(a.stats.TasksTrained, a.model.TaskClasses(), a.snapshot, a.fisher, a.cfg)
}

// RestoreCheckpoint replaces the consolidation state from a checkpoint.
// The checkpoint must match the live backbone exactly.
func (a *Approach) RestoreCheckpoint(cp *domainEWC.Checkpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	backbone := a.model.BackboneParameters()
	if err := cp.Snapshot.CheckParity(backbone); err != nil {
		return fmt.Errorf("checkpoint snapshot: %w", err)
	}
	if err := cp.Importance.CheckParity(backbone); err != nil {
		return fmt.Errorf("checkpoint importance: %w", err)
	}

	a.snapshot = cp.Snapshot.Clone()
	a.fisher = cp.Importance.Clone()
	a.stats.TasksTrained = cp.TaskCount
	return nil
}
