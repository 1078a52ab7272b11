// Package pipeline orchestrates one classification pass: select unprocessed
// calls in rounds, classify them grouped by campaign prompt, and persist the
// results.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/classifier"
	"github.com/adstia/call-tagging/internal/model"
	"github.com/adstia/call-tagging/internal/store"
	"github.com/adstia/call-tagging/internal/taxonomy"
)

// Store is the persistence surface the runner needs.
type Store interface {
	SelectUnprocessed(ctx context.Context, filter store.SelectFilter) ([]model.Call, error)
	TagDefinitions(ctx context.Context) ([]model.TagDefinition, error)
	ActivePrompts(ctx context.Context) (map[string]model.Prompt, error)
	SaveAnalysis(ctx context.Context, a *model.Analysis, raw []byte) error
	RecordFailure(ctx context.Context, callID int64, cause string) error
}

// Classifier is the provider surface the runner needs.
type Classifier interface {
	ClassifyGroup(ctx context.Context, group classifier.Group) []classifier.Result
	ProviderDown() bool
}

// Config controls one pass of the runner.
type Config struct {
	// BatchSize is how many calls each round selects.
	BatchSize int

	// TotalLimit caps how many analyses a single pass may persist across
	// all rounds. Failed calls do not consume the budget; they come back in
	// a later round until the attempt cap quarantines them. Zero means no
	// ceiling.
	TotalLimit int

	// MaxAttempts quarantines calls that failed classification this many
	// times; they stay out of work selection until an operator intervenes.
	MaxAttempts int

	// Cutoff excludes calls older than this from work selection.
	Cutoff time.Time

	// Cooldown is the pause between rounds.
	Cooldown time.Duration

	// Model is recorded on each stored analysis.
	Model string
}

// Stop reasons for a pass.
const (
	StopExhausted    = "exhausted"
	StopLimit        = "limit"
	StopProviderDown = "provider_down"
	StopCanceled     = "canceled"
)

// PassResult summarizes one pass.
type PassResult struct {
	Rounds          int           `json:"rounds"`
	Selected        int           `json:"selected"`
	Saved           int           `json:"saved"`
	Failed          int           `json:"failed"`
	SkippedNoPrompt int           `json:"skipped_no_prompt"`
	Stop            string        `json:"stop"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Runner executes classification passes.
type Runner struct {
	store      Store
	classifier Classifier
	cfg        Config
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a pass runner.
func NewRunner(s Store, c Classifier, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Runner{
		store:      s,
		classifier: c,
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// Run performs one full pass. It keeps selecting rounds until the work queue
// is exhausted, the pass ceiling is hit, the provider circuit opens, or the
// context is canceled. A pass never fails because individual calls failed;
// those are counted and quarantine via the attempt cap.
func (r *Runner) Run(ctx context.Context) (*PassResult, error) {
	start := time.Now()
	res := &PassResult{}

	defs, err := r.store.TagDefinitions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load tag vocabulary")
	}
	vocab := taxonomy.NewVocabulary(defs)
	if vocab.Len() == 0 {
		return nil, eris.New("pipeline: tag vocabulary is empty, run migrations and seed tag_definitions")
	}

	prompts, err := r.store.ActivePrompts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load campaign prompts")
	}

	zap.L().Info("classification pass starting",
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Int("total_limit", r.cfg.TotalLimit),
		zap.Int("vocabulary_size", vocab.Len()),
		zap.Int("campaign_prompts", len(prompts)),
	)

	for {
		batch := r.cfg.BatchSize
		if r.cfg.TotalLimit > 0 {
			remaining := r.cfg.TotalLimit - res.Saved
			if remaining <= 0 {
				res.Stop = StopLimit
				break
			}
			if batch > remaining {
				batch = remaining
			}
		}

		calls, err := r.store.SelectUnprocessed(ctx, store.SelectFilter{
			Limit:       batch,
			Cutoff:      r.cfg.Cutoff,
			MaxAttempts: r.cfg.MaxAttempts,
		})
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, eris.Wrap(err, "pipeline: select work")
		}
		if len(calls) == 0 {
			res.Stop = StopExhausted
			break
		}
		res.Rounds++
		res.Selected += len(calls)

		r.runRound(ctx, calls, prompts, vocab, res)

		if r.classifier.ProviderDown() {
			zap.L().Warn("provider circuit open, stopping pass early")
			res.Stop = StopProviderDown
			break
		}
		if ctx.Err() != nil {
			res.Stop = StopCanceled
			break
		}
		if len(calls) < batch {
			res.Stop = StopExhausted
			break
		}
		if r.cfg.Cooldown > 0 {
			if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
				res.Stop = StopCanceled
				break
			}
		}
	}

	res.Elapsed = time.Since(start)
	zap.L().Info("classification pass finished",
		zap.Int("rounds", res.Rounds),
		zap.Int("selected", res.Selected),
		zap.Int("saved", res.Saved),
		zap.Int("failed", res.Failed),
		zap.Int("skipped_no_prompt", res.SkippedNoPrompt),
		zap.String("stop", res.Stop),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// runRound classifies one selected batch, grouped per campaign so each group
// shares a system prompt.
func (r *Runner) runRound(ctx context.Context, calls []model.Call, prompts map[string]model.Prompt, vocab *taxonomy.Vocabulary, res *PassResult) {
	byCampaign := make(map[string][]model.Call)
	var order []string
	for _, call := range calls {
		if _, ok := prompts[call.CampaignID]; !ok {
			// No active prompt means no way to classify. Record it so the
			// call eventually drops out of selection instead of spinning.
			res.SkippedNoPrompt++
			r.recordFailure(ctx, call.ID, eris.Errorf("pipeline: no active prompt for campaign %q", call.CampaignID))
			continue
		}
		if _, seen := byCampaign[call.CampaignID]; !seen {
			order = append(order, call.CampaignID)
		}
		byCampaign[call.CampaignID] = append(byCampaign[call.CampaignID], call)
	}

	for _, campaignID := range order {
		group := classifier.Group{
			Prompt: prompts[campaignID].SystemPrompt,
			Calls:  byCampaign[campaignID],
		}
		results := r.classifier.ClassifyGroup(ctx, group)

		for _, item := range results {
			if item.Err != nil {
				res.Failed++
				r.recordFailure(ctx, item.Call.ID, item.Err)
				continue
			}

			analysis := taxonomy.Encode(item.Call, item.Output, vocab, item.Elapsed, r.cfg.Model)
			raw, err := json.Marshal(item.Output)
			if err != nil {
				raw = []byte("{}")
			}
			if err := r.store.SaveAnalysis(ctx, analysis, raw); err != nil {
				zap.L().Error("persisting analysis failed",
					zap.Int64("call_id", item.Call.ID),
					zap.Error(err),
				)
				res.Failed++
				r.recordFailure(ctx, item.Call.ID, err)
				continue
			}
			res.Saved++
		}

		if r.classifier.ProviderDown() {
			return
		}
	}
}

func (r *Runner) recordFailure(ctx context.Context, callID int64, cause error) {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if err := r.store.RecordFailure(ctx, callID, msg); err != nil {
		zap.L().Error("recording call failure failed",
			zap.Int64("call_id", callID),
			zap.Error(err),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
