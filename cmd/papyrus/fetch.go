package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/papyrus/internal/metrics"
	"github.com/FranksOps/papyrus/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <phrase>",
	Short: "Search for one phrase and download the documents",
	Long: `Fetch searches the repository (or, with --index, the bibliographic index)
for the given phrase and downloads the full-text PDF of every result it can
reach into the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	registerRunFlags(fetchCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	bindRunFlags(cmd)
	ctx := cmd.Context()

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

	sess, err := newSession(ctx)
	if err != nil {
		return err
	}

	opts.Phrase = args[0]
	opts.Dir = viper.GetString("out")
	opts.Session = sess

	saved, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Saved %d document(s) to %s\n", len(saved), opts.Dir)
	for _, path := range saved {
		fmt.Fprintf(os.Stdout, "  %s\n", path)
	}
	return nil
}
