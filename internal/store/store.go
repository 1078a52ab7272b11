package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adstia/call-tagging/internal/model"
)

// ErrNotFound marks updates addressed to a row that does not exist. Lookups
// returning a single record signal absence with a nil result instead.
var ErrNotFound = eris.New("not found")

// SelectFilter specifies criteria for selecting classification work.
type SelectFilter struct {
	// Limit caps the number of calls returned.
	Limit int

	// Cutoff excludes calls earlier than this timestamp.
	Cutoff time.Time

	// MaxAttempts excludes calls that already failed this many times.
	MaxAttempts int
}

// CallSummary is one row of a tier search or high-priority listing: the
// analysis essentials joined back to human-readable tier values.
type CallSummary struct {
	CallID        int64           `json:"call_id"`
	CallerID      string          `json:"caller_id"`
	Tier1Value    string          `json:"tier1_value,omitempty"`
	Tier4Value    string          `json:"tier4_value,omitempty"`
	Tier5Value    string          `json:"tier5_value,omitempty"`
	Dispute       model.Dispute   `json:"dispute_recommendation,omitempty"`
	DisputeReason string          `json:"dispute_recommendation_reason,omitempty"`
	Summary       string          `json:"call_summary"`
	Confidence    float64         `json:"confidence_score"`
	Revenue       float64         `json:"current_revenue,omitempty"`
	Billed        bool            `json:"current_billed_status,omitempty"`
	ProcessedAt   time.Time       `json:"processed_at"`
	TierData      json.RawMessage `json:"tier_data,omitempty"`
}

// Store defines the persistence interface for the call tagging pipeline.
type Store interface {
	// Work selection
	SelectUnprocessed(ctx context.Context, filter SelectFilter) ([]model.Call, error)
	RecordFailure(ctx context.Context, callID int64, cause string) error
	GetCall(ctx context.Context, id int64) (*model.Call, error)
	InsertCalls(ctx context.Context, calls []model.Call) (int, error)

	// Vocabulary
	TagDefinitions(ctx context.Context) ([]model.TagDefinition, error)
	TagStats(ctx context.Context, limit int) ([]model.TagStat, error)

	// Prompts
	ActivePrompts(ctx context.Context) (map[string]model.Prompt, error)
	ListPrompts(ctx context.Context, campaignID string) ([]model.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)
	CreatePromptVersion(ctx context.Context, p model.Prompt) (*model.Prompt, error)
	DeactivatePrompt(ctx context.Context, id string) error

	// Results
	SaveAnalysis(ctx context.Context, a *model.Analysis, raw []byte) error
	GetAnalysis(ctx context.Context, callID int64) (*model.Analysis, error)
	SearchByTier(ctx context.Context, tier int, tagValue string, limit int) ([]CallSummary, error)
	SearchSummaries(ctx context.Context, term string, limit int) ([]CallSummary, error)
	HighPriority(ctx context.Context, limit int) ([]CallSummary, error)
	Analytics(ctx context.Context, start, end time.Time) (json.RawMessage, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
