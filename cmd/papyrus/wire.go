package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/papyrus/internal/diag"
	"github.com/FranksOps/papyrus/internal/download"
	"github.com/FranksOps/papyrus/internal/fingerprint"
	"github.com/FranksOps/papyrus/internal/manifest"
	"github.com/FranksOps/papyrus/internal/manifest/jsonl"
	"github.com/FranksOps/papyrus/internal/manifest/postgres"
	"github.com/FranksOps/papyrus/internal/manifest/sqlite"
	"github.com/FranksOps/papyrus/internal/pipeline"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

// registerRunFlags declares the flags shared by fetch and batch.
func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("limit", 10, "maximum number of search results to attempt")
	f.String("out", "downloads", "output directory")
	f.Bool("index", false, "search the bibliographic index instead of the repository")
	f.Bool("no-browser", false, "use a plain HTTP session instead of a browser")
	f.Bool("headless", true, "run the browser headless")
	f.String("tls-profile", "chrome", "TLS fingerprint for the HTTP session: chrome, firefox, go")
	f.Bool("respect-robots", false, "honor robots.txt on the HTTP session")
	f.Duration("nav-timeout", 15*time.Second, "page navigation timeout")
	f.Duration("strategy-timeout", 30*time.Second, "per-strategy download timeout")
	f.Duration("delay", time.Second, "pause between consecutive articles")
	f.Float64("jitter", 0.25, "random fraction of delay added or removed")
	f.String("collision", "overwrite", "existing-file policy: overwrite, skip, rename")
	f.String("manifest", "none", "manifest backend: none, a .db or .jsonl path, or a postgres:// DSN")
	f.String("diag-dir", "", "directory for failure snapshots (empty disables)")
	f.Int("metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")

}

// bindRunFlags binds cmd's flags into viper, so every knob can also come
// from papyrus.yaml or a PAPYRUS_* environment variable. Bound at run time
// because fetch and batch declare the same flag names on separate flag sets.
func bindRunFlags(cmd *cobra.Command) {
	for _, name := range []string{
		"limit", "out", "index", "no-browser", "headless", "tls-profile",
		"respect-robots", "nav-timeout", "strategy-timeout", "delay",
		"jitter", "collision", "manifest", "diag-dir", "metrics-port",
	} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

// newSession builds the session the run drives: a real browser by default,
// or a plain HTTP client with a browser TLS fingerprint when --no-browser
// is set.
func newSession(ctx context.Context) (session.Session, error) {
	if viper.GetBool("no-browser") {
		return session.NewHTTP(session.HTTPConfig{
			Fingerprint:   fingerprint.Profile(viper.GetString("tls-profile")),
			Timeout:       viper.GetDuration("nav-timeout"),
			RespectRobots: viper.GetBool("respect-robots"),
		})
	}
	return session.NewBrowser(ctx, session.BrowserConfig{
		Headless:        viper.GetBool("headless"),
		NavigateTimeout: viper.GetDuration("nav-timeout"),
		DownloadTimeout: viper.GetDuration("strategy-timeout"),
	})
}

// newManifest opens the backend named by --manifest: none, a .jsonl or .db
// path, or a postgres:// DSN.
func newManifest(ctx context.Context, spec string) (manifest.Backend, error) {
	switch {
	case spec == "" || spec == "none":
		return manifest.Discard{}, nil
	case strings.HasPrefix(spec, "postgres://") || strings.HasPrefix(spec, "postgresql://"):
		return postgres.New(ctx, spec)
	case strings.HasSuffix(spec, ".jsonl"):
		return jsonl.New(spec)
	default:
		return sqlite.New(spec)
	}
}

// pipelineOptions assembles the per-phrase settings shared by fetch and
// batch. Phrase, Dir and Session are filled per invocation.
func pipelineOptions() (pipeline.Options, error) {
	policy, err := download.ParsePolicy(viper.GetString("collision"))
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Limit:           viper.GetInt("limit"),
		Repository:      site.PMC(),
		Delay:           viper.GetDuration("delay"),
		Jitter:          viper.GetFloat64("jitter"),
		Policy:          policy,
		StrategyTimeout: viper.GetDuration("strategy-timeout"),
	}
	if viper.GetBool("index") {
		opts.Entry = site.PubMed()
	}
	if dir := viper.GetString("diag-dir"); dir != "" {
		opts.Diagnostics = &diag.FileSink{Dir: dir}
	}
	return opts, nil
}
