package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/state"
)

var (
	inspectStore  string
	inspectDBPath string
	inspectID     string
	inspectJSON   bool
)

// InspectCmd lists stored checkpoints and summarizes importance maps.
var InspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect stored consolidation checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := openStore(ctx, inspectStore, inspectDBPath)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer db.Close()

		if inspectID == "" {
			return listCheckpoints(ctx, db)
		}
		return showCheckpoint(ctx, db, inspectID)
	},
}

func listCheckpoints(ctx context.Context, db state.Store) error {
	summaries, err := db.ListCheckpoints(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no checkpoints stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\ttasks\tcreated")
	for _, cs := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", cs.ID, cs.TaskCount,
			time.UnixMilli(cs.CreatedAt).Format(time.RFC3339))
	}
	return w.Flush()
}

func showCheckpoint(ctx context.Context, db state.Store, id string) error {
	cp, err := db.LoadCheckpoint(ctx, id)
	if err != nil {
		return err
	}

	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	}

	fmt.Printf("checkpoint %s: %d tasks, classes %v, lamb=%g alpha=%g\n",
		cp.ID, cp.TaskCount, cp.TaskClasses, cp.Config.Lamb, cp.Config.Alpha)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "parameter\telements\tavg importance\tmax importance")
	for _, name := range cp.Importance.Names() {
		t := cp.Importance.Get(name)
		var sum, max float64
		for _, v := range t.Data {
			sum += v
			if v > max {
				max = v
			}
		}
		avg := 0.0
		if t.Numel() > 0 {
			avg = sum / float64(t.Numel())
		}
		fmt.Fprintf(w, "%s\t%d\t%.6g\t%.6g\n", name, t.Numel(), avg, max)
	}
	return w.Flush()
}

func init() {
	InspectCmd.Flags().StringVar(&inspectStore, "store", "sqlite", "checkpoint store backend (sqlite|postgres, postgres reads PG* env)")
	InspectCmd.Flags().StringVar(&inspectDBPath, "db", ".data/ewc.db", "checkpoint database path (sqlite)")
	InspectCmd.Flags().StringVar(&inspectID, "id", "", "checkpoint id to show (empty: list all)")
	InspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "emit the full checkpoint as JSON")
}
