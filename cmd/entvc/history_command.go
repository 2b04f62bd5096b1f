package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/idiotf/entry-video-compress/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var olderThan time.Duration
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case clearAll:
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d entries\n", removed)
				return nil
			case olderThan > 0:
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d entries older than %s\n", removed, olderThan)
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No conversions recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list (0 lists all)")
	cmd.Flags().DurationVar(&olderThan, "prune", 0, "Remove entries older than this duration (e.g. 720h)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Remove every entry")
	cmd.MarkFlagsMutuallyExclusive("prune", "clear")
	return cmd
}

func renderHistory(entries []*history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		output := "-"
		if len(e.OutputPaths) > 0 {
			output = filepath.Base(e.OutputPaths[0])
			if len(e.OutputPaths) > 1 {
				output = fmt.Sprintf("%s (+%d)", output, len(e.OutputPaths)-1)
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.FinishedAt.Local().Format("2006-01-02 15:04"),
			filepath.Base(e.InputPath),
			string(e.Status),
			output,
			strconv.Itoa(e.Frames),
			humanize.IBytes(uint64(max(e.OutputBytes, 0))),
			e.Elapsed().Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]string{"ID", "Finished", "Input", "Status", "Archive", "Frames", "Size", "Elapsed"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}
