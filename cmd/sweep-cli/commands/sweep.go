package commands

import (
	"log/slog"
	"os/signal"
	"syscall"

	"procheck-sweep/lib/ratelimit"
	"procheck-sweep/lib/scrapers/procheck"
	"procheck-sweep/lib/serviceutil"
	"procheck-sweep/lib/sqliteutil"
	"procheck-sweep/services/sweep"
	"procheck-sweep/services/sweep/db"

	"github.com/spf13/cobra"
)

var (
	sweepDeep    *bool
	sweepResume  *bool
	sweepLetters *[]string
)

func init() {
	sweepDeep = sweepCmd.Flags().Bool("deep", false, "Run the drillthrough phase (contact extraction) after the surface sweep.")
	sweepResume = sweepCmd.Flags().Bool("resume", false, "Resume from an existing checkpoint instead of starting fresh.")
	sweepLetters = sweepCmd.Flags().StringSlice("letters", nil, "Only sweep these letters (e.g. A,B,C). Defaults to the configured letters, then A-Z.")
	rootCmd.AddCommand(sweepCmd)
}

func newSession(cfg Config, limiter *ratelimit.Limiter) *procheck.Client {
	client, err := procheck.NewClient(procheck.ClientOptions{
		BaseUrl:   cfg.PortalUrl,
		UserAgent: cfg.UserAgent,
		Limiter:   limiter,
	})
	if err != nil {
		serviceutil.Fatal("failed to create portal session", err)
	}
	return client
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [--deep] [--resume] [--letters A,B,C]",
	Short: "Runs the prefix sweep against the portal and writes records to the results database.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		letters := cfg.Letters
		if len(*sweepLetters) > 0 {
			letters = *sweepLetters
		}

		checkpoint := sweep.NewCheckpointStore(cfg.CheckpointFile)
		if *sweepResume {
			loaded, err := checkpoint.Load()
			if err != nil {
				serviceutil.Fatal("failed to load checkpoint", err)
			}
			if loaded {
				slog.Info(
					"resumed checkpoint",
					"prefixes_done", len(checkpoint.State().CompletedPrefixes),
					"agents_found", checkpoint.State().TotalAgentsFound,
				)
			} else {
				slog.Info("no checkpoint found, starting fresh")
			}
		}

		database, err := sqliteutil.OpenDB(db.Schema, cfg.ResultsDb)
		if err != nil {
			serviceutil.Fatal("failed to open results db", err)
		}
		defer database.Close()

		// progress already flushed survives an interrupt, the next
		// --resume picks up where this run stopped
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orchestrator := sweep.NewOrchestrator(sweep.Options{
			Session:          newSession(cfg, cfg.limiter()),
			Checkpoint:       checkpoint,
			Sink:             sweep.NewStore(database),
			Retry:            cfg.retryPolicy(),
			Prefixes:         sweep.Prefixes(letters),
			Deep:             *sweepDeep,
			FlushEvery:       cfg.FlushEvery,
			DeepFlushEvery:   cfg.DeepFlushEvery,
			CapWarnThreshold: cfg.CapWarnThreshold,
		})

		report, err := orchestrator.Run(ctx)
		if err != nil {
			serviceutil.Fatal("sweep aborted", err)
		}

		slog.Info(
			"sweep complete",
			"unique_agents", report.UniqueAgents,
			"skipped_prefixes", report.SkippedPrefixes,
			"failed_prefixes", report.FailedPrefixes,
			"deep_enriched", report.DeepEnriched,
			"deep_failed", report.DeepFailed,
			"results", cfg.ResultsDb,
		)
	},
}
