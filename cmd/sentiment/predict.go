package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/dataset"
	"sentilab/ml"
)

type predictionLine struct {
	Text          string             `json:"text"`
	Sentiment     string             `json:"sentiment"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func predictCmd() *cobra.Command {
	var (
		file       string
		textColumn string
	)

	cmd := &cobra.Command{
		Use:   "predict [text...]",
		Short: "Predict the sentiment of texts or of every row in a dataset",
		Long: `Predict writes one JSON object per input text to stdout.

Examples:
  sentiment predict "great product, love it" "arrived broken"
  sentiment predict --file uploads/reviews.csv --text-column review > predictions.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if file != "" {
				ds, err := dataset.Load(file)
				if err != nil {
					return err
				}
				if texts, err = ds.Column(textColumn); err != nil {
					return err
				}
			}
			if len(texts) == 0 {
				return errors.New("no texts provided")
			}

			a, err := analyzer.New(analyzer.ConfigFrom(cfg), logger)
			if err != nil {
				return err
			}
			if err := a.EnsureLoaded(); err != nil {
				return err
			}

			var bar *progressbar.ProgressBar
			if file != "" {
				bar = progressbar.NewOptions(len(texts),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("predicting"),
					progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
				)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, text := range texts {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				pred, err := a.Predict(text)
				if err != nil {
					return err
				}
				if err := enc.Encode(toLine(text, pred)); err != nil {
					return err
				}
				if bar != nil {
					if err := bar.Add(1); err != nil {
						logger.Debug("progress bar update failed", zap.Error(err))
					}
				}
			}
			if bar != nil {
				bar.Finish()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "dataset file to predict row by row")
	cmd.Flags().StringVar(&textColumn, "text-column", "text", "column holding the text when --file is used")
	return cmd
}

func toLine(text string, pred ml.Prediction) predictionLine {
	probs := make(map[string]float64, ml.NumClasses)
	for label, name := range ml.ClassNames() {
		probs[strings.ToLower(name)] = pred.Probability(label)
	}
	return predictionLine{
		Text:          text,
		Sentiment:     pred.Sentiment,
		Confidence:    pred.Confidence,
		Probabilities: probs,
	}
}
