// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appEWC "github.com/BoyuanWangMust/ATTAC/internal/application/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/application/training"
	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/exemplars"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/nn"
)

var (
	trainLamb        float64
	trainAlpha       float64
	trainSampling    string
	trainNumSamples  int
	trainEpochs      int
	trainLR          float64
	trainBatchSize   int
	trainTasks       string
	trainDim         int
	trainHidden      int
	trainDropout     float64
	trainPerClass    int
	trainExemplars   int
	trainSeed        int64
	trainStore       string
	trainDBPath      string
	trainQuiet       bool
)

// TrainCmd runs a continual-learning sequence on synthetic data and
// persists the final consolidation checkpoint.
var TrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a task sequence with EWC consolidation",
	Long: `Train a multi-head classifier over a sequence of synthetic tasks.
The --tasks flag gives the class count per task, e.g. --tasks 2,3,5.
After each task the Fisher importance map is updated and both the
parameter snapshot and importance map are checkpointed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskClasses, err := parseTaskClasses(trainTasks)
		if err != nil {
			return err
		}

		cfg := ewc.Config{
			Lamb:         trainLamb,
			Alpha:        trainAlpha,
			SamplingType: ewc.SamplingType(trainSampling),
			NumSamples:   trainNumSamples,
		}
		trainerCfg := training.DefaultConfig()
		trainerCfg.Epochs = trainEpochs
		trainerCfg.LR = trainLR

		model := nn.NewMultiHeadNet(nn.NetConfig{
			InputDim:  trainDim,
			HiddenDim: trainHidden,
			Dropout:   trainDropout,
			Seed:      trainSeed,
		})
		store := exemplars.NewStore(exemplars.StoreConfig{
			MaxPerClass: trainExemplars,
			Seed:        trainSeed,
		})
		approach := appEWC.New(model, cfg, trainerCfg, store)
		if !trainQuiet {
			approach.SetProgress(func(epoch int, trainLoss, valLoss float64) {
				fmt.Printf("  epoch %3d  train %.4f  val %.4f\n", epoch, trainLoss, valLoss)
			})
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		valLoaders := make([]*data.Loader, 0, len(taskClasses))
		offset := 0
		for t, classes := range taskClasses {
			fmt.Printf("task %d: %d classes (labels %d..%d)\n", t, classes, offset, offset+classes-1)
			model.AddHead(classes)

			synCfg := data.SyntheticConfig{
				Dim:             trainDim,
				SamplesPerClass: trainPerClass,
				Spread:          0.8,
				Seed:            trainSeed + int64(t),
			}
			trn := data.GenerateSynthetic(synCfg, classes, offset)
			synCfg.Seed += 1000
			synCfg.SamplesPerClass = trainPerClass / 5
			val := data.GenerateSynthetic(synCfg, classes, offset)

			loaderCfg := data.DefaultLoaderConfig()
			loaderCfg.BatchSize = trainBatchSize
			loaderCfg.Seed = trainSeed + int64(t)
			trnLoader := data.NewLoader(trn, loaderCfg)
			valLoader := data.NewLoader(val, loaderCfg)
			valLoaders = append(valLoaders, valLoader)

			if err := approach.TrainTask(ctx, t, trnLoader, valLoader); err != nil {
				return fmt.Errorf("task %d: %w", t, err)
			}
			printEval(approach, valLoaders)
			offset += classes
		}

		stats := approach.Stats()
		fmt.Printf("\ntrained %d tasks in %d epochs, cumulative penalty %.4f, last alpha %.3f\n",
			stats.TasksTrained, stats.TotalEpochs, stats.TotalRegularization, stats.LastAlpha)

		db, err := openStore(ctx, trainStore, trainDBPath)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer db.Close()

		cp := approach.CreateCheckpoint()
		if err := db.SaveCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		fmt.Printf("checkpoint %s saved to %s\n", cp.ID, storeLabel(trainStore, trainDBPath))
		return nil
	},
}

// printEval reports accuracy on every task seen so far, exposing any
// forgetting of earlier tasks.
func printEval(approach *appEWC.Approach, valLoaders []*data.Loader) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  task\tloss\ttask-aware acc\ttask-agnostic acc")
	for t, loader := range valLoaders {
		res := approach.Eval(t, loader)
		fmt.Fprintf(w, "  %d\t%.4f\t%.3f\t%.3f\n", t, res.Loss, res.TaskAwareAcc, res.TaskAgnosticAcc)
	}
	w.Flush()
}

func parseTaskClasses(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid task class count %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func init() {
	TrainCmd.Flags().Float64Var(&trainLamb, "lamb", 5000, "forgetting-intransigence trade-off")
	TrainCmd.Flags().Float64Var(&trainAlpha, "alpha", 0.5, "fisher fusion weight (-1: class-proportional)")
	TrainCmd.Flags().StringVar(&trainSampling, "fi-sampling-type", "max_pred", "fisher sampling type (true|max_pred|multinomial)")
	TrainCmd.Flags().IntVar(&trainNumSamples, "fi-num-samples", -1, "fisher sample budget (-1: all available)")
	TrainCmd.Flags().IntVar(&trainEpochs, "epochs", 40, "max epochs per task")
	TrainCmd.Flags().Float64Var(&trainLR, "lr", 0.05, "initial learning rate")
	TrainCmd.Flags().IntVar(&trainBatchSize, "batch-size", 32, "batch size")
	TrainCmd.Flags().StringVar(&trainTasks, "tasks", "2,3,5", "comma-separated class count per task")
	TrainCmd.Flags().IntVar(&trainDim, "dim", 16, "input feature dimension")
	TrainCmd.Flags().IntVar(&trainHidden, "hidden", 32, "backbone hidden width")
	TrainCmd.Flags().Float64Var(&trainDropout, "dropout", 0.1, "backbone dropout")
	TrainCmd.Flags().IntVar(&trainPerClass, "samples-per-class", 200, "training samples per class")
	TrainCmd.Flags().IntVar(&trainExemplars, "exemplars-per-class", 0, "stored exemplars per class (0: disabled)")
	TrainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "random seed")
	TrainCmd.Flags().StringVar(&trainStore, "store", "sqlite", "checkpoint store backend (sqlite|postgres, postgres reads PG* env)")
	TrainCmd.Flags().StringVar(&trainDBPath, "db", ".data/ewc.db", "checkpoint database path (sqlite)")
	TrainCmd.Flags().BoolVar(&trainQuiet, "quiet", false, "suppress per-epoch progress")
}
