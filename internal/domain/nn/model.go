package nn

// Batch is a mini-batch of feature vectors with integer class labels.
// Labels are global class indices across the task sequence.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// Outputs holds per-task-head logits: Outputs[head][example][class].
type Outputs [][][]float64

// TotalClasses returns the summed class count across all heads.
func (o Outputs) TotalClasses() int {
	total := 0
	for _, head := range o {
		if len(head) > 0 {
			total += len(head[0])
		}
	}
	return total
}

// Concat flattens per-head logits into a single [example][class] matrix,
// heads in order. All heads must have seen the same batch.
func (o Outputs) Concat() [][]float64 {
	if len(o) == 0 {
		return nil
	}
	batch := len(o[0])
	out := make([][]float64, batch)
	for i := 0; i < batch; i++ {
		row := make([]float64, 0, o.TotalClasses())
		for _, head := range o {
			row = append(row, head[i]...)
		}
		out[i] = row
	}
	return out
}

// State is an opaque forward-pass cache consumed by Backward.
type State interface{}

// Model is the contract between the consolidation machinery and the
// underlying multi-head network. The backbone parameters returned by
// BackboneParameters are the regularization target; head parameters are
// excluded from importance bookkeeping.
type Model interface {
	// Train puts the model into training mode (dropout active).
	Train()
	// Eval puts the model into evaluation mode.
	Eval()

	// Forward computes per-head logits for a batch of inputs and returns
	// the cache needed for a subsequent Backward call.
	Forward(inputs [][]float64) (Outputs, State)

	// Backward accumulates gradients into parameter buffers given the
	// loss gradient with respect to the concatenated logits.
	Backward(st State, dLogits [][]float64)

	// ZeroGrad clears every parameter gradient buffer.
	ZeroGrad()

	// BackboneParameters returns the shared trainable parameters in a
	// stable order.
	BackboneParameters() []*Parameter

	// HeadParameters returns the parameters of head k.
	HeadParameters(k int) []*Parameter

	// Parameters returns all trainable parameters, backbone first.
	Parameters() []*Parameter

	// AddHead appends a classification head for a task with the given
	// number of classes.
	AddHead(classes int)

	// TaskClasses returns the class count per task seen so far.
	TaskClasses() []int

	// TaskOffsets returns the global label offset per task.
	TaskOffsets() []int
}
