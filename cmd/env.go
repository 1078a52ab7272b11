package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adstia/call-tagging/internal/classifier"
	"github.com/adstia/call-tagging/internal/pipeline"
	"github.com/adstia/call-tagging/internal/resilience"
	"github.com/adstia/call-tagging/internal/store"
	"github.com/adstia/call-tagging/pkg/openrouter"
)

// openStore connects to Postgres using the loaded config.
func openStore(ctx context.Context) (*store.PostgresStore, error) {
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
}

// buildClassifier wires the OpenRouter client and classifier from config.
func buildClassifier() *classifier.Classifier {
	var opts []openrouter.Option
	if cfg.OpenRouter.BaseURL != "" {
		opts = append(opts, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
	}
	if cfg.OpenRouter.Model != "" {
		opts = append(opts, openrouter.WithModel(cfg.OpenRouter.Model))
	}
	if cfg.OpenRouter.RequestsPerMinute > 0 {
		opts = append(opts, openrouter.WithRequestsPerMinute(cfg.OpenRouter.RequestsPerMinute))
	}
	client := openrouter.NewClient(cfg.OpenRouter.Key, opts...)

	ccfg := classifier.DefaultConfig()
	ccfg.Model = cfg.OpenRouter.Model
	ccfg.UseSchema = cfg.OpenRouter.UseSchema
	if cfg.OpenRouter.Temperature > 0 {
		ccfg.Temperature = cfg.OpenRouter.Temperature
	}
	if cfg.OpenRouter.MaxTokens > 0 {
		ccfg.MaxTokens = cfg.OpenRouter.MaxTokens
	}
	if cfg.Pipeline.Concurrency > 0 {
		ccfg.Concurrency = cfg.Pipeline.Concurrency
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Pipeline.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Pipeline.MaxRetries
	}
	if cfg.Pipeline.RetryInitialMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.Pipeline.RetryInitialMs) * time.Millisecond
	}
	ccfg.Retry = retry

	return classifier.New(client, ccfg)
}

// pipelineConfig translates the loaded config into runner settings.
func pipelineConfig() (pipeline.Config, error) {
	pc := pipeline.Config{
		BatchSize:   cfg.Pipeline.BatchSize,
		TotalLimit:  cfg.Pipeline.TotalLimit,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Cooldown:    time.Duration(cfg.Pipeline.CooldownSecs) * time.Second,
		Model:       cfg.OpenRouter.Model,
	}
	if cfg.Pipeline.CutoffDate != "" {
		cutoff, err := time.Parse("2006-01-02", cfg.Pipeline.CutoffDate)
		if err != nil {
			return pc, eris.Wrapf(err, "invalid pipeline cutoff_date %q, want YYYY-MM-DD", cfg.Pipeline.CutoffDate)
		}
		pc.Cutoff = cutoff
	}
	return pc, nil
}

// newRunner builds a pass runner against the given store.
func newRunner(st *store.PostgresStore) (*pipeline.Runner, error) {
	pc, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(st, buildClassifier(), pc), nil
}
