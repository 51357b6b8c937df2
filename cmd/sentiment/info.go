package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sentilab/analyzer"
	"sentilab/db"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the persisted model artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := analyzer.New(analyzer.ConfigFrom(cfg), logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			info, err := a.Info()
			if err != nil {
				return err
			}
			if !info.Exists {
				fmt.Fprintf(out, "No trained model found at %s\n", info.Path)
				return nil
			}
			if err := a.LoadModel(info.Path); err != nil {
				return err
			}
			if info, err = a.Info(); err != nil {
				return err
			}

			fmt.Fprintf(out, "path:             %s\n", info.Path)
			fmt.Fprintf(out, "size:             %d bytes\n", info.Size)
			fmt.Fprintf(out, "modified:         %s\n", info.ModTime.Format(time.RFC3339))
			fmt.Fprintf(out, "model type:       %s\n", info.ModelType)
			fmt.Fprintf(out, "trained at:       %s\n", info.TrainedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "vocabulary size:  %d\n", info.VocabularySize)
			fmt.Fprintf(out, "training samples: %d\n", info.TrainingSamples)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListTrainingRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No training runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTRAINED AT\tMODEL\tSTATUS\tACCURACY\tF1\tSAMPLES\tDATASET")
			for _, run := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.4f\t%d/%d\t%s\n",
					run.ID, run.TrainedAt.Local().Format("2006-01-02 15:04:05"), run.ModelType, run.Status,
					run.Accuracy, run.F1Score, run.TrainSamples, run.TestSamples, run.DatasetPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
