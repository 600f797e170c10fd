package training

import (
	"context"
	"math"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
)

// Config configures the generic training loop.
type Config struct {
	// Epochs is the maximum number of epochs per task.
	Epochs int `json:"epochs"`

	// LR is the initial learning rate.
	LR float64 `json:"lr"`

	// LRMin stops training once the decayed rate falls below it.
	LRMin float64 `json:"lrMin"`

	// LRFactor divides the rate on a validation plateau.
	LRFactor float64 `json:"lrFactor"`

	// LRPatience is the number of epochs without validation improvement
	// before the rate decays.
	LRPatience int `json:"lrPatience"`

	// ClipGrad bounds the global gradient norm.
	ClipGrad float64 `json:"clipGrad"`

	// Momentum is the SGD momentum.
	Momentum float64 `json:"momentum"`

	// WeightDecay is the L2 penalty applied inside the optimizer.
	WeightDecay float64 `json:"weightDecay"`
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Epochs:      100,
		LR:          0.05,
		LRMin:       1e-4,
		LRFactor:    3,
		LRPatience:  5,
		ClipGrad:    10000,
		Momentum:    0,
		WeightDecay: 0,
	}
}

// Criterion is the per-batch loss contract the approach provides. Loss
// returns the scalar loss and its gradient with respect to the
// concatenated head logits; Regularize adds any penalty gradients to the
// parameter buffers after backpropagation.
type Criterion interface {
	Loss(outputs nn.Outputs, targets []int) (float64, [][]float64)
	Regularize()
}

// Result summarizes one training run.
type Result struct {
	// EpochsRun is the number of epochs actually executed.
	EpochsRun int `json:"epochsRun"`

	// FinalTrainLoss is the train loss of the last epoch.
	FinalTrainLoss float64 `json:"finalTrainLoss"`

	// BestValLoss is the best validation loss observed.
	BestValLoss float64 `json:"bestValLoss"`

	// LossHistory is the per-epoch train loss.
	LossHistory []float64 `json:"lossHistory"`
}

// Trainer runs the epoch loop with plateau-based learning-rate decay and
// best-weight restore. One Trainer drives one model at a time; tasks are
// strictly sequential.
type Trainer struct {
	cfg        Config
	progressFn func(epoch int, trainLoss, valLoss float64)
}

// NewTrainer creates a trainer.
func NewTrainer(cfg Config) *Trainer {
	return &Trainer{cfg: cfg}
}

// SetProgress installs a per-epoch progress callback.
func (tr *Trainer) SetProgress(fn func(epoch int, trainLoss, valLoss float64)) {
	tr.progressFn = fn
}

// Train runs up to cfg.Epochs over the training loader, optimizing only
// the given parameter set. Cancellation is honored between epochs; a
// batch always runs to completion.
func (tr *Trainer) Train(ctx context.Context, m nn.Model, params []*nn.Parameter, trn, val *data.Loader, crit Criterion) (*Result, error) {
	opt := NewSGD(tr.cfg.LR, tr.cfg.Momentum, tr.cfg.WeightDecay)
	res := &Result{BestValLoss: math.Inf(1)}

	lr := tr.cfg.LR
	patience := 0
	best := snapshotWeights(m)

	for epoch := 0; epoch < tr.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		m.Train()
		var trainLoss float64
		batches := 0
		for batch := range trn.Batches() {
			outputs, st := m.Forward(batch.Inputs)
			loss, dLogits := crit.Loss(outputs, batch.Labels)

			m.ZeroGrad()
			m.Backward(st, dLogits)
			crit.Regularize()
			ClipGradNorm(params, tr.cfg.ClipGrad)
			opt.Step(params)

			trainLoss += loss
			batches++
		}
		if batches > 0 {
			trainLoss /= float64(batches)
		}
		res.LossHistory = append(res.LossHistory, trainLoss)
		res.FinalTrainLoss = trainLoss
		res.EpochsRun = epoch + 1

		valLoss := tr.evalLoss(m, val, crit)
		if tr.progressFn != nil {
			tr.progressFn(epoch+1, trainLoss, valLoss)
		}

		if valLoss < res.BestValLoss {
			res.BestValLoss = valLoss
			best = snapshotWeights(m)
			patience = 0
			continue
		}

		patience++
		if patience < tr.cfg.LRPatience {
			continue
		}
		// Plateau: decay the rate and restart from the best weights.
		lr /= tr.cfg.LRFactor
		restoreWeights(m, best)
		if lr < tr.cfg.LRMin {
			break
		}
		patience = 0
		opt.SetLR(lr)
	}

	restoreWeights(m, best)
	return res, nil
}

// evalLoss computes the mean criterion loss over the validation loader
// in evaluation mode.
func (tr *Trainer) evalLoss(m nn.Model, val *data.Loader, crit Criterion) float64 {
	m.Eval()
	var total float64
	batches := 0
	for batch := range val.Batches() {
		outputs, _ := m.Forward(batch.Inputs)
		loss, _ := crit.Loss(outputs, batch.Labels)
		total += loss
		batches++
	}
	if batches == 0 {
		return math.Inf(1)
	}
	return total / float64(batches)
}

func snapshotWeights(m nn.Model) map[*nn.Parameter][]float64 {
	out := make(map[*nn.Parameter][]float64)
	for _, p := range m.Parameters() {
		out[p] = p.CloneData()
	}
	return out
}

func restoreWeights(m nn.Model, saved map[*nn.Parameter][]float64) {
	for _, p := range m.Parameters() {
		if w, ok := saved[p]; ok && len(w) == len(p.Data) {
			copy(p.Data, w)
		}
	}
}
