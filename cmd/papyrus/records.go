package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/papyrus/internal/manifest"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Query a manifest of past runs",
	Long: `Records lists article attempts from a manifest backend, newest first.
Filter by phrase or outcome to audit what a run did and why downloads
failed.`,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().String("manifest", "", "manifest backend: a .db or .jsonl path, or a postgres:// DSN")
	recordsCmd.Flags().String("phrase", "", "only records for this search phrase")
	recordsCmd.Flags().String("outcome", "", "only records with this outcome")
	recordsCmd.Flags().Int("limit", 50, "maximum records to list")
	recordsCmd.Flags().Duration("since", 0, "only records newer than this age, e.g. 24h")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	spec, _ := cmd.Flags().GetString("manifest")
	if spec == "" || spec == "none" {
		return fmt.Errorf("provide a manifest backend with --manifest")
	}

	backend, err := newManifest(cmd.Context(), spec)
	if err != nil {
		return err
	}
	defer backend.Close()

	filter := manifest.Filter{}
	filter.Phrase, _ = cmd.Flags().GetString("phrase")
	filter.Outcome, _ = cmd.Flags().GetString("outcome")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if age, _ := cmd.Flags().GetDuration("since"); age > 0 {
		cutoff := time.Now().Add(-age)
		filter.Since = &cutoff
	}

	records, err := backend.Query(cmd.Context(), filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tPHRASE\tSITE\tID\tOUTCOME\tDETAIL")
	for _, r := range records {
		detail := r.SavedPath
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Phrase, r.Site, r.RepositoryID, r.Outcome, detail)
	}
	return w.Flush()
}
