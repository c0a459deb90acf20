package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/papyrus/internal/batch"
	"github.com/FranksOps/papyrus/internal/metrics"
)

var batchCmd = &cobra.Command{
	Use:   "batch [phrases...]",
	Short: "Run a list of search phrases, one subdirectory each",
	Long: `Batch runs the fetch pipeline for every phrase. Phrases come from the
arguments, or from a file with --phrases-file (one phrase per line, blank
lines and #-comments ignored). Each phrase lands in <out>/<phrase> with
spaces and slashes replaced by underscores.`,
	RunE: runBatch,
}

func init() {
	registerRunFlags(batchCmd)
	batchCmd.Flags().String("phrases-file", "", "file with one search phrase per line")
	batchCmd.Flags().Int("concurrency", 1, "phrases processed at once")
	batchCmd.Flags().String("summary", "text", "summary format: text or json")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	bindRunFlags(cmd)
	ctx := cmd.Context()

	phrases := args
	if file, _ := cmd.Flags().GetString("phrases-file"); file != "" {
		fromFile, err := readPhrases(file)
		if err != nil {
			return err
		}
		phrases = append(phrases, fromFile...)
	}
	if len(phrases) == 0 {
		return fmt.Errorf("provide phrases as arguments or via --phrases-file")
	}

	opts, err := pipelineOptions()
	if err != nil {
		return err
	}

	backend, err := newManifest(ctx, viper.GetString("manifest"))
	if err != nil {
		return err
	}
	defer backend.Close()
	opts.Manifest = backend

	if port := viper.GetInt("metrics-port"); port > 0 {
		srv := metrics.Start(port)
		defer srv.Stop(ctx)
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	summary, err := batch.Run(ctx, batch.Options{
		Phrases:     phrases,
		BaseDir:     viper.GetString("out"),
		Concurrency: concurrency,
		NewSession:  newSession,
		Pipeline:    opts,
	})
	if err != nil {
		return err
	}

	if format, _ := cmd.Flags().GetString("summary"); format == "json" {
		return batch.WriteJSON(os.Stdout, summary)
	}
	return batch.WriteText(os.Stdout, summary)
}

// readPhrases loads one phrase per line, skipping blanks and #-comments.
func readPhrases(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return phrases, nil
}
