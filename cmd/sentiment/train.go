package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sentilab/analyzer"
	"sentilab/ml"
)

func trainCmd() *cobra.Command {
	var req analyzer.TrainRequest

	cmd := &cobra.Command{
		Use:   "train <dataset>",
		Short: "Train a model from a CSV, TXT or JSON dataset",
		Long: `Train fits the vectorizer and classifier on a labeled dataset, prints the
evaluation report and overwrites the model artifact.

Examples:
  sentiment train data/reviews.csv
  sentiment train data/tweets.json --model-type naive_bayes --text-column tweet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeStore, err := openAnalyzer()
			if err != nil {
				return err
			}
			defer closeStore()

			req.Filepath = args[0]
			result, err := a.Train(cmd.Context(), req)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.ModelType, "model-type", "m", "", fmt.Sprintf("classifier %v (default from config)", ml.ModelTypes()))
	cmd.Flags().StringVar(&req.TextColumn, "text-column", "text", "column holding the text")
	cmd.Flags().StringVar(&req.LabelColumn, "label-column", "sentiment", "column holding the label")
	cmd.Flags().Float64Var(&req.TestSize, "test-size", analyzer.DefaultTestSize, "fraction of rows held out for evaluation")
	return cmd
}

func printReport(out io.Writer, result *analyzer.TrainResult) {
	r := result.Report
	fmt.Fprintf(out, "model:     %s\n", result.ModelType)
	fmt.Fprintf(out, "saved to:  %s\n", result.ModelPath)
	fmt.Fprintf(out, "samples:   %d train / %d test\n", result.TrainSamples, result.TestSamples)
	if c := result.Cleaning; c.Rejected > 0 {
		fmt.Fprintf(out, "dropped:   %d of %d rows %v\n", c.Rejected, c.TotalProcessed, c.Issues)
	}
	fmt.Fprintf(out, "duration:  %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "accuracy:  %.4f\n\n", r.Accuracy)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1-score\tsupport\t")
	for label, name := range ml.ClassNames() {
		c := r.Class(label)
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", name, c.Precision, c.Recall, c.F1Score, c.Support)
	}
	fmt.Fprintf(tw, "macro avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1Score, r.MacroAvg.Support)
	fmt.Fprintf(tw, "weighted avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1Score, r.WeightedAvg.Support)
	tw.Flush()

	fmt.Fprintln(out, "\nconfusion matrix (rows actual, columns predicted):")
	for label, row := range r.ConfusionMatrix {
		fmt.Fprintf(out, "  %-8s %v\n", ml.ClassName(label), row)
	}
}
