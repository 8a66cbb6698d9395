package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/failproof/stressor/internal/adapter"
	"github.com/failproof/stressor/internal/config"
	"github.com/failproof/stressor/internal/credential"
	"github.com/failproof/stressor/internal/dashboard"
	"github.com/failproof/stressor/internal/logging"
	"github.com/failproof/stressor/internal/metrics"
	"github.com/failproof/stressor/internal/output"
	"github.com/failproof/stressor/internal/ratelimit"
	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/retry"
	"github.com/failproof/stressor/internal/runner"
	"github.com/failproof/stressor/internal/storage"
	"github.com/failproof/stressor/internal/testcase"
	"github.com/failproof/stressor/internal/threshold"
	"github.com/failproof/stressor/internal/tracing"
	"github.com/failproof/stressor/internal/vulnscan"
)

const progressInterval = time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a batch of adversarial test cases against a model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, false)
	},
}

func init() {
	config.RegisterRunFlags(runCmd.Flags())
}

// executeRun is shared by the run and dashboard commands.
func executeRun(cmd *cobra.Command, forceDashboard bool) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if forceDashboard {
		cfg.Dashboard = true
		cfg.JSONOutput = false
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("cli")

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	if cfg.CasesFile == "" {
		return fmt.Errorf("no test cases: pass --cases or set cases_file in the config")
	}
	cases, err := testcase.Load(cfg.CasesFile)
	if err != nil {
		return err
	}

	creds, err := credential.Load(cfg.APIKey, cfg.KeysFile)
	if err != nil {
		return err
	}
	key, err := creds.Resolve(cfg.Provider)
	if err != nil {
		return err
	}

	backend, err := adapter.New(cfg.Provider, adapter.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  key,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	var limiter *ratelimit.Limiter
	if cfg.RatePerMinute > 0 || cfg.RatePerHour > 0 {
		limiter = ratelimit.New(ratelimit.Limits{
			PerMinute: cfg.RatePerMinute,
			PerHour:   cfg.RatePerHour,
		}, cfg.AdmissionTimeout)
	}

	r, err := runner.New(runner.Options{
		RunName: cfg.RunName,
		Adapter: backend,
		Params: adapter.Params{
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
			SystemPrompt: cfg.SystemPrompt,
		},
		MaxConcurrent:    cfg.MaxConcurrent,
		RequestTimeout:   cfg.RequestTimeout,
		Retry:            retry.NewPolicy(cfg.MaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		Limiter:          limiter,
		RatePerMinute:    cfg.RatePerMinute,
		RatePerHour:      cfg.RatePerHour,
		AdmissionTimeout: cfg.AdmissionTimeout,
		RatePerSecond:    cfg.RatePerSecond,
		Detector:         vulnscan.NewDetector(),
		Logger:           logging.Component("runner"),
		Tracer:           tp.Tracer(),
	})
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("storage close")
		}
	}()

	run, results, err := r.Run(ctx, cases)
	if err != nil {
		return err
	}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("persist run")
	}

	agg := metrics.NewAggregator()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(agg, dashboard.RunInfo{
			RunName:     cfg.RunName,
			Provider:    cfg.Provider,
			Model:       cfg.Model,
			Concurrency: cfg.MaxConcurrent,
			TotalCases:  len(cases),
			Rate:        cfg.RatePerSecond,
			Timeout:     cfg.RequestTimeout,
			MaxAttempts: cfg.MaxAttempts,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(agg, len(cases), progressInterval, os.Stdout)
		progress.Start()
	}

	// Persistence uses a fresh context: the run context may already be
	// cancelled while results still drain.
	for res := range results {
		agg.Observe(res)
		if err := store.SaveResult(context.Background(), res); err != nil {
			log.Warn().Err(err).Str("case_id", res.TestCaseID).Msg("persist result")
		}
	}
	final := r.Final()
	if err := store.UpdateRun(context.Background(), final); err != nil {
		log.Warn().Err(err).Msg("persist run status")
	}

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}
	if dash != nil {
		dash.Stop()
	}

	stats := agg.Stats()
	thresholdResults := threshold.NewEvaluator(thresholds).Evaluate(stats)

	rep := output.Report{Run: final, Stats: stats, Thresholds: thresholdResults}
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, rep); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, rep)
	}
	if cfg.OutputFile != "" {
		if err := writeReportFile(cfg.OutputFile, rep); err != nil {
			return err
		}
	}

	switch {
	case final.Status == result.RunFailed:
		return fmt.Errorf("run failed: %s", final.Error)
	case !threshold.AllPassed(thresholdResults):
		return errors.New("thresholds not met")
	}
	return nil
}

func writeReportFile(path string, rep output.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := output.PrintJSONReport(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
