package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/db"
	"github.com/adstia/call-tagging/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	campaign_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	ai_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calls (
	id                BIGSERIAL PRIMARY KEY,
	caller_id         TEXT NOT NULL UNIQUE,
	campaign_id       TEXT NOT NULL DEFAULT '',
	transcript        TEXT,
	duration_secs     INTEGER NOT NULL DEFAULT 0,
	caller_phone      TEXT NOT NULL DEFAULT '',
	revenue           NUMERIC(10,2) NOT NULL DEFAULT 0,
	billed            BOOLEAN NOT NULL DEFAULT FALSE,
	duplicate         BOOLEAN NOT NULL DEFAULT FALSE,
	hung_up           TEXT,
	first_name        TEXT,
	last_name         TEXT,
	address           TEXT,
	city              TEXT,
	state             TEXT,
	zip               TEXT,
	call_time         TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed         BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at      TIMESTAMPTZ,
	classify_attempts INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_calls_unprocessed ON calls(processed, call_time) WHERE processed = FALSE;
CREATE INDEX IF NOT EXISTS idx_calls_campaign ON calls(campaign_id);

CREATE TABLE IF NOT EXISTS tag_definitions (
	id          SERIAL PRIMARY KEY,
	tag_value   TEXT NOT NULL UNIQUE,
	tier        INTEGER NOT NULL,
	priority    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tag_definitions_tier ON tag_definitions(tier);

CREATE TABLE IF NOT EXISTS campaign_prompts (
	id             TEXT PRIMARY KEY,
	campaign_id    TEXT NOT NULL,
	campaign_name  TEXT NOT NULL DEFAULT '',
	prompt_version TEXT NOT NULL DEFAULT 'v1',
	system_prompt  TEXT NOT NULL,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	notes          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaign_prompts_active ON campaign_prompts(campaign_id) WHERE is_active = TRUE;

CREATE TABLE IF NOT EXISTS call_analysis (
	call_id    BIGINT PRIMARY KEY REFERENCES calls(id),
	caller_id  TEXT NOT NULL DEFAULT '',
	call_time  TIMESTAMPTZ,

	tier1_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier2_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier3_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier4_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier5_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier6_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier7_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier8_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier9_data  JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',
	tier10_data JSONB NOT NULL DEFAULT '{"value_ids":[],"reasons":{}}',

	confidence_score              NUMERIC(3,2) NOT NULL DEFAULT 0.5,
	dispute_recommendation        VARCHAR(20) NOT NULL DEFAULT 'NONE',
	dispute_recommendation_reason TEXT NOT NULL DEFAULT '',
	call_summary                  TEXT NOT NULL DEFAULT '',
	extracted_customer_info       JSONB NOT NULL DEFAULT '{}',
	system_duplicate              BOOLEAN NOT NULL DEFAULT FALSE,
	current_revenue               NUMERIC(10,2) NOT NULL DEFAULT 0,
	current_billed_status         BOOLEAN NOT NULL DEFAULT FALSE,
	processing_time_ms            INTEGER NOT NULL DEFAULT 0,
	model_used                    VARCHAR(100) NOT NULL DEFAULT '',
	processed_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_dispute ON call_analysis(dispute_recommendation);
CREATE INDEX IF NOT EXISTS idx_analysis_processed_at ON call_analysis(processed_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_tier1_ids ON call_analysis USING GIN ((tier1_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier2_ids ON call_analysis USING GIN ((tier2_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier3_ids ON call_analysis USING GIN ((tier3_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier4_ids ON call_analysis USING GIN ((tier4_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier5_ids ON call_analysis USING GIN ((tier5_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier6_ids ON call_analysis USING GIN ((tier6_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier7_ids ON call_analysis USING GIN ((tier7_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier8_ids ON call_analysis USING GIN ((tier8_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier9_ids ON call_analysis USING GIN ((tier9_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_tier10_ids ON call_analysis USING GIN ((tier10_data->'value_ids'));
CREATE INDEX IF NOT EXISTS idx_analysis_summary_fts ON call_analysis USING GIN (to_tsvector('english', call_summary));

CREATE TABLE IF NOT EXISTS call_analysis_raw (
	call_id      BIGINT PRIMARY KEY REFERENCES call_analysis(call_id) ON DELETE CASCADE,
	raw_response JSONB NOT NULL,
	stored_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS call_tags (
	call_id    BIGINT NOT NULL REFERENCES calls(id),
	tag_id     INTEGER NOT NULL REFERENCES tag_definitions(id),
	confidence NUMERIC(3,2) NOT NULL DEFAULT 0.5,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (call_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_call_tags_tag ON call_tags(tag_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	if _, err := s.pool.Exec(ctx, postgresSeedTags); err != nil {
		return eris.Wrap(err, "postgres: seed tag vocabulary")
	}
	return nil
}

// postgresSeedTags installs the default vocabulary. Existing values are left
// untouched so operator edits survive re-running migrate.
const postgresSeedTags = `
INSERT INTO tag_definitions (tag_value, tier, priority) VALUES
	('QUALIFIED_APPOINTMENT_SET', 1, 'HIGH'),
	('SOFT_LEAD_INTERESTED', 1, 'MEDIUM'),
	('INFORMATION_ONLY_CALL', 1, 'LOW'),
	('BUYER_EARLY_HANGUP', 1, 'HIGH'),
	('USER_EARLY_HANGUP', 1, 'LOW'),
	('NO_BUYER_INTEREST', 1, 'HIGH'),

	('WRONG_NUMBER', 2, 'LOW'),
	('UNSERVICEABLE_GEOGRAPHY', 2, 'HIGH'),
	('UNSERVICEABLE_APPLIANCE_TV', 2, 'HIGH'),
	('UNSERVICEABLE_APPLIANCE_COMMERCIAL', 2, 'HIGH'),
	('UNSERVICEABLE_APPLIANCE_HVAC', 2, 'HIGH'),
	('UNSERVICEABLE_APPLIANCE_POOL', 2, 'HIGH'),
	('UNSERVICEABLE_APPLIANCE_OTHER', 2, 'HIGH'),
	('BUYER_AVAILABILITY_ISSUE', 2, 'MEDIUM'),
	('BUYER_ROUTING_FAILURE', 2, 'MEDIUM'),
	('IMMEDIATE_DISCONNECT', 2, 'HIGH'),
	('POSSIBLE_DISPUTE', 2, 'MEDIUM'),

	('URGENT_REPAIR_NEEDED', 3, 'HIGH'),
	('PREVENTIVE_MAINTENANCE', 3, 'LOW'),
	('WARRANTY_CLAIM_ATTEMPT', 3, 'MEDIUM'),
	('PRICE_COMPARISON_SHOPPING', 3, 'LOW'),
	('CONSIDERING_NEW_PURCHASE', 3, 'LOW'),
	('PARTS_INQUIRY', 3, 'LOW'),

	('WASHER_REPAIR', 4, 'MEDIUM'),
	('DRYER_REPAIR', 4, 'MEDIUM'),
	('REFRIGERATOR_REPAIR', 4, 'MEDIUM'),
	('DISHWASHER_REPAIR', 4, 'MEDIUM'),
	('OVEN_STOVE_REPAIR', 4, 'MEDIUM'),
	('MICROWAVE_REPAIR', 4, 'MEDIUM'),
	('GARBAGE_DISPOSAL_REPAIR', 4, 'MEDIUM'),
	('MULTIPLE_APPLIANCES', 4, 'MEDIUM'),
	('UNKNOWN_APPLIANCE', 4, 'LOW'),

	('LIKELY_BILLABLE', 5, 'HIGH'),
	('QUESTIONABLE_BILLING', 5, 'MEDIUM'),
	('DEFINITELY_NOT_BILLABLE', 5, 'HIGH'),

	('ELDERLY_CUSTOMER', 6, 'LOW'),
	('RENTAL_PROPERTY_OWNER', 6, 'LOW'),
	('FIRST_TIME_HOMEOWNER', 6, 'LOW'),
	('MULTILINGUAL_CUSTOMER', 6, 'LOW'),
	('COMMERCIAL_PROPERTY', 6, 'LOW'),

	('EXCELLENT_BUYER_SERVICE', 7, 'MEDIUM'),
	('POOR_BUYER_SERVICE', 7, 'HIGH'),
	('BUYER_MISSED_OPPORTUNITY', 7, 'MEDIUM'),

	('HIGH_INTENT_TRAFFIC', 8, 'MEDIUM'),
	('BRAND_CONFUSION_TRAFFIC', 8, 'LOW'),
	('CONSUMER_SHOPPING_MULTIPLE', 8, 'LOW'),

	('DIY_ATTEMPT_FAILED', 9, 'LOW'),
	('INSURANCE_CLAIM_RELATED', 9, 'MEDIUM'),

	('CALLBACK_REQUESTED', 10, 'MEDIUM'),
	('ESCALATION_REQUESTED', 10, 'HIGH'),
	('COMPLIANCE_CONCERN', 10, 'HIGH')
ON CONFLICT (tag_value) DO NOTHING
`

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// callColumns is the scan list shared by call reads. The transcript is
// speaker-normalized at selection time: the "A -" / "B -" markers the
// transcription vendor emits become "Agent:" / "Customer:" so the prompt
// reads naturally.
const callColumns = `
	c.id, c.caller_id, c.campaign_id,
	REGEXP_REPLACE(
		REGEXP_REPLACE(COALESCE(c.transcript, ''), '^A\s*-\s*', 'Agent: ', 'gm'),
		'^B\s*-\s*', 'Customer: ', 'gm'
	) AS transcript,
	c.duration_secs, c.caller_phone, c.revenue, c.billed, c.duplicate,
	COALESCE(c.hung_up, ''), COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
	COALESCE(c.address, ''), COALESCE(c.city, ''), COALESCE(c.state, ''), COALESCE(c.zip, ''),
	c.call_time, c.processed, c.processed_at, c.classify_attempts, c.last_error`

func scanCall(row pgx.Row) (*model.Call, error) {
	var c model.Call
	err := row.Scan(
		&c.ID, &c.CallerID, &c.CampaignID, &c.Transcript,
		&c.Duration, &c.CallerPhone, &c.Revenue, &c.Billed, &c.Duplicate,
		&c.HungUp, &c.FirstName, &c.LastName,
		&c.Address, &c.City, &c.State, &c.Zip,
		&c.CallTime, &c.Processed, &c.ProcessedAt, &c.Attempts, &c.LastError,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SelectUnprocessed returns the oldest unprocessed calls in stable id order.
// Only calls from AI-enabled campaigns with a non-empty transcript qualify;
// calls past the failure cap stay quarantined until an operator intervenes.
func (s *PostgresStore) SelectUnprocessed(ctx context.Context, filter SelectFilter) ([]model.Call, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	maxAttempts := filter.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+callColumns+`
		 FROM calls c
		 INNER JOIN campaigns cp ON cp.campaign_id = c.campaign_id AND cp.ai_enabled = TRUE
		 WHERE c.transcript IS NOT NULL
		   AND c.transcript != ''
		   AND c.processed = FALSE
		   AND c.call_time >= $1
		   AND c.classify_attempts < $2
		 ORDER BY c.id ASC
		 LIMIT $3`,
		filter.Cutoff, maxAttempts, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select unprocessed")
	}
	defer rows.Close()

	var calls []model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan call")
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: select unprocessed iterate")
}

// RecordFailure bumps the failure counter for a call so that repeatedly
// failing items eventually drop out of work selection.
func (s *PostgresStore) RecordFailure(ctx context.Context, callID int64, cause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE calls SET classify_attempts = classify_attempts + 1, last_error = $2 WHERE id = $1`,
		callID, cause,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record failure for call %d", callID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: call %d", callID)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id int64) (*model.Call, error) {
	c, err := scanCall(s.pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM calls c WHERE c.id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get call %d", id)
	}
	return c, nil
}

// InsertCalls bulk-inserts call records, skipping caller ids already present.
// Returns the number of rows actually inserted.
func (s *PostgresStore) InsertCalls(ctx context.Context, calls []model.Call) (int, error) {
	if len(calls) == 0 {
		return 0, nil
	}

	const fieldCount = 14
	query := `INSERT INTO calls
		(caller_id, campaign_id, transcript, duration_secs, caller_phone, revenue, billed,
		 duplicate, hung_up, first_name, last_name, city, state, call_time) VALUES `
	args := make([]any, 0, len(calls)*fieldCount)
	for i, c := range calls {
		if i > 0 {
			query += ", "
		}
		query += "("
		for j := 0; j < fieldCount; j++ {
			if j > 0 {
				query += ", "
			}
			query += fmt.Sprintf("$%d", i*fieldCount+j+1)
		}
		query += ")"

		callTime := c.CallTime
		if callTime.IsZero() {
			callTime = time.Now().UTC()
		}
		args = append(args,
			c.CallerID, c.CampaignID, c.Transcript, c.Duration, c.CallerPhone,
			c.Revenue, c.Billed, c.Duplicate, c.HungUp, c.FirstName, c.LastName,
			c.City, c.State, callTime,
		)
	}
	query += ` ON CONFLICT (caller_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert calls")
	}
	return int(tag.RowsAffected()), nil
}

// TagDefinitions returns the full tag vocabulary in id order.
func (s *PostgresStore) TagDefinitions(ctx context.Context) ([]model.TagDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tag_value, tier, priority, description, created_at
		 FROM tag_definitions ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tag definitions")
	}
	defer rows.Close()

	var defs []model.TagDefinition
	for rows.Next() {
		var d model.TagDefinition
		if err := rows.Scan(&d.ID, &d.Value, &d.Tier, &d.Priority, &d.Description, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag definition")
		}
		defs = append(defs, d)
	}
	return defs, eris.Wrap(rows.Err(), "postgres: tag definitions iterate")
}

// TagStats reports how often each tag is assigned and at what confidence.
func (s *PostgresStore) TagStats(ctx context.Context, limit int) ([]model.TagStat, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT td.tag_value, td.tier, td.priority,
		        COUNT(ct.call_id) AS usage_count,
		        COALESCE(AVG(ct.confidence), 0) AS avg_confidence
		 FROM tag_definitions td
		 LEFT JOIN call_tags ct ON ct.tag_id = td.id
		 GROUP BY td.id, td.tag_value, td.tier, td.priority
		 ORDER BY usage_count DESC, td.id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tag stats")
	}
	defer rows.Close()

	var stats []model.TagStat
	for rows.Next() {
		var st model.TagStat
		if err := rows.Scan(&st.Value, &st.Tier, &st.Priority, &st.UsageCount, &st.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: tag stats iterate")
}

const promptColumns = `id, campaign_id, campaign_name, prompt_version, is_active, notes,
	LENGTH(system_prompt) AS prompt_chars, created_at, updated_at`

// ActivePrompts returns the active prompt per campaign, keyed by campaign id.
// Campaigns without an active prompt are simply absent; there is no global
// fallback prompt.
func (s *PostgresStore) ActivePrompts(ctx context.Context) (map[string]model.Prompt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, campaign_id, campaign_name, prompt_version, system_prompt
		 FROM campaign_prompts
		 WHERE is_active = TRUE AND campaign_id != ''
		 ORDER BY campaign_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active prompts")
	}
	defer rows.Close()

	prompts := make(map[string]model.Prompt)
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.CampaignName, &p.Version, &p.SystemPrompt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan active prompt")
		}
		p.Active = true
		prompts[p.CampaignID] = p
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: active prompts iterate")
}

// ListPrompts lists prompt versions, newest first, without the prompt body.
// An empty campaignID lists every campaign.
func (s *PostgresStore) ListPrompts(ctx context.Context, campaignID string) ([]model.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM campaign_prompts`
	args := []any{}
	if campaignID != "" {
		query += ` WHERE campaign_id = $1`
		args = append(args, campaignID)
	}
	query += ` ORDER BY campaign_id, created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.CampaignName, &p.Version, &p.Active,
			&p.Notes, &p.PromptChars, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: list prompts iterate")
}

// GetPrompt returns one prompt row including the full body, or nil when no
// such row exists.
func (s *PostgresStore) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var p model.Prompt
	err := s.pool.QueryRow(ctx,
		`SELECT id, campaign_id, campaign_name, prompt_version, is_active, notes,
		        system_prompt, LENGTH(system_prompt) AS prompt_chars, created_at, updated_at
		 FROM campaign_prompts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.CampaignID, &p.CampaignName, &p.Version, &p.Active, &p.Notes,
		&p.SystemPrompt, &p.PromptChars, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get prompt %s", id)
	}
	return &p, nil
}

// CreatePromptVersion inserts a new active prompt for a campaign and
// deactivates the prior active row in the same transaction.
func (s *PostgresStore) CreatePromptVersion(ctx context.Context, p model.Prompt) (*model.Prompt, error) {
	if p.CampaignID == "" {
		return nil, eris.New("postgres: prompt campaign_id is required")
	}
	if p.SystemPrompt == "" {
		return nil, eris.New("postgres: prompt body is required")
	}
	if p.Version == "" {
		p.Version = "v1"
	}

	p.ID = uuid.New().String()
	p.Active = true
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.PromptChars = len(p.SystemPrompt)

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE campaign_prompts SET is_active = FALSE, updated_at = $2
			 WHERE campaign_id = $1 AND is_active = TRUE`,
			p.CampaignID, now,
		); err != nil {
			return eris.Wrap(err, "postgres: deactivate prior prompt")
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO campaign_prompts
			 (id, campaign_id, campaign_name, prompt_version, system_prompt, is_active, notes, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)`,
			p.ID, p.CampaignID, p.CampaignName, p.Version, p.SystemPrompt, p.Notes, now, now,
		); err != nil {
			return eris.Wrap(err, "postgres: insert prompt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeactivatePrompt soft-deletes a prompt row; history is kept.
func (s *PostgresStore) DeactivatePrompt(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_prompts SET is_active = FALSE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate prompt %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: prompt %s", id)
	}
	return nil
}

// SaveAnalysis commits one classification result atomically: the analysis
// row is replaced wholesale, the raw provider blob is stored alongside, the
// tag join rows are rebuilt, and the call is flagged processed. Either all
// of it lands or none of it does, so a retried save is indistinguishable
// from a first save.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *model.Analysis, raw []byte) error {
	tierJSON := make([][]byte, model.TierCount)
	for n := 1; n <= model.TierCount; n++ {
		b, err := json.Marshal(a.Tier(n))
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal tier %d", n)
		}
		tierJSON[n-1] = b
	}

	customerInfo := a.CustomerInfo
	if customerInfo == nil {
		customerInfo = map[string]string{}
	}
	customerJSON, err := json.Marshal(customerInfo)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal customer info")
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO call_analysis (
				call_id, caller_id, call_time,
				tier1_data, tier2_data, tier3_data, tier4_data, tier5_data,
				tier6_data, tier7_data, tier8_data, tier9_data, tier10_data,
				confidence_score, dispute_recommendation, dispute_recommendation_reason,
				call_summary, extracted_customer_info, system_duplicate,
				current_revenue, current_billed_status, processing_time_ms, model_used
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21, $22, $23
			)
			ON CONFLICT (call_id) DO UPDATE SET
				caller_id                     = EXCLUDED.caller_id,
				call_time                     = EXCLUDED.call_time,
				tier1_data                    = EXCLUDED.tier1_data,
				tier2_data                    = EXCLUDED.tier2_data,
				tier3_data                    = EXCLUDED.tier3_data,
				tier4_data                    = EXCLUDED.tier4_data,
				tier5_data                    = EXCLUDED.tier5_data,
				tier6_data                    = EXCLUDED.tier6_data,
				tier7_data                    = EXCLUDED.tier7_data,
				tier8_data                    = EXCLUDED.tier8_data,
				tier9_data                    = EXCLUDED.tier9_data,
				tier10_data                   = EXCLUDED.tier10_data,
				confidence_score              = EXCLUDED.confidence_score,
				dispute_recommendation        = EXCLUDED.dispute_recommendation,
				dispute_recommendation_reason = EXCLUDED.dispute_recommendation_reason,
				call_summary                  = EXCLUDED.call_summary,
				extracted_customer_info       = EXCLUDED.extracted_customer_info,
				system_duplicate              = EXCLUDED.system_duplicate,
				current_revenue               = EXCLUDED.current_revenue,
				current_billed_status         = EXCLUDED.current_billed_status,
				processing_time_ms            = EXCLUDED.processing_time_ms,
				model_used                    = EXCLUDED.model_used,
				processed_at                  = now()`,
			a.CallID, a.CallerID, a.CallTime,
			tierJSON[0], tierJSON[1], tierJSON[2], tierJSON[3], tierJSON[4],
			tierJSON[5], tierJSON[6], tierJSON[7], tierJSON[8], tierJSON[9],
			a.Confidence, string(a.Dispute), a.DisputeReason,
			a.Summary, customerJSON, a.SystemDuplicate,
			a.Revenue, a.Billed, a.ProcessingMs, a.Model,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert analysis for call %d", a.CallID)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO call_analysis_raw (call_id, raw_response)
			 VALUES ($1, $2)
			 ON CONFLICT (call_id) DO UPDATE
			 SET raw_response = EXCLUDED.raw_response, stored_at = now()`,
			a.CallID, raw,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert raw response for call %d", a.CallID)
		}

		// Rebuild the tag join so stale assignments from a prior
		// classification cannot survive a re-run.
		if _, err := tx.Exec(ctx,
			`DELETE FROM call_tags WHERE call_id = $1`, a.CallID,
		); err != nil {
			return eris.Wrapf(err, "postgres: clear call tags for call %d", a.CallID)
		}

		if tags := a.CallTags(); len(tags) > 0 {
			query := `INSERT INTO call_tags (call_id, tag_id, confidence) VALUES `
			args := make([]any, 0, 1+len(tags)*2)
			args = append(args, a.CallID)
			for i, t := range tags {
				if i > 0 {
					query += ", "
				}
				query += fmt.Sprintf("($1, $%d, $%d)", len(args)+1, len(args)+2)
				args = append(args, t.TagID, t.Confidence)
			}
			query += ` ON CONFLICT (call_id, tag_id) DO UPDATE SET confidence = EXCLUDED.confidence`

			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return eris.Wrapf(err, "postgres: insert call tags for call %d", a.CallID)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE calls SET processed = TRUE, processed_at = now(), last_error = '' WHERE id = $1`,
			a.CallID,
		); err != nil {
			return eris.Wrapf(err, "postgres: mark call %d processed", a.CallID)
		}
		return nil
	})
}

// GetAnalysis returns the stored classification for a call, or nil when the
// call has not been classified.
func (s *PostgresStore) GetAnalysis(ctx context.Context, callID int64) (*model.Analysis, error) {
	a := &model.Analysis{}
	tierJSON := make([][]byte, model.TierCount)
	var customerJSON []byte
	var dispute string

	scanDest := []any{&a.CallID, &a.CallerID, &a.CallTime}
	for i := range tierJSON {
		scanDest = append(scanDest, &tierJSON[i])
	}
	scanDest = append(scanDest,
		&a.Confidence, &dispute, &a.DisputeReason, &a.Summary, &customerJSON,
		&a.SystemDuplicate, &a.Revenue, &a.Billed, &a.ProcessingMs, &a.Model, &a.ProcessedAt,
	)

	err := s.pool.QueryRow(ctx,
		`SELECT call_id, caller_id, call_time,
		        tier1_data, tier2_data, tier3_data, tier4_data, tier5_data,
		        tier6_data, tier7_data, tier8_data, tier9_data, tier10_data,
		        confidence_score, dispute_recommendation, dispute_recommendation_reason,
		        call_summary, extracted_customer_info, system_duplicate,
		        current_revenue, current_billed_status, processing_time_ms, model_used, processed_at
		 FROM call_analysis WHERE call_id = $1`,
		callID,
	).Scan(scanDest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get analysis for call %d", callID)
	}

	for n := 1; n <= model.TierCount; n++ {
		sel := model.NewTierSelection(n)
		if err := json.Unmarshal(tierJSON[n-1], &sel); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal tier %d for call %d", n, callID)
		}
		sel.Tier = n
		sel.Mode = model.TierMode(n)
		a.Tiers[n-1] = sel
	}
	if err := json.Unmarshal(customerJSON, &a.CustomerInfo); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal customer info for call %d", callID)
	}
	a.Dispute = model.Dispute(dispute)
	return a, nil
}

// SearchByTier lists calls carrying a tag value in a given tier. An unknown
// tag value returns an empty result rather than an error.
func (s *PostgresStore) SearchByTier(ctx context.Context, tier int, tagValue string, limit int) ([]CallSummary, error) {
	if tier < 1 || tier > model.TierCount {
		return nil, eris.Errorf("postgres: invalid tier %d", tier)
	}
	if limit <= 0 {
		limit = 100
	}

	var tagID int
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM tag_definitions WHERE tag_value = $1 AND tier = $2`,
		tagValue, tier,
	).Scan(&tagID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			zap.L().Warn("tier search for unknown tag value",
				zap.Int("tier", tier),
				zap.String("tag_value", tagValue),
			)
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: resolve tag value %q", tagValue)
	}

	idJSON, err := json.Marshal([]int{tagID})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal tag id filter")
	}

	dataCol := fmt.Sprintf("tier%d_data", tier)
	rows, err := s.pool.Query(ctx,
		`SELECT a.call_id, a.caller_id,
		        COALESCE(td1.tag_value, ''), COALESCE(td4.tag_value, ''), COALESCE(td5.tag_value, ''),
		        a.`+dataCol+`, a.call_summary, a.confidence_score, a.processed_at
		 FROM call_analysis a
		 LEFT JOIN tag_definitions td1 ON td1.id = (a.tier1_data->'value_ids'->>0)::int
		 LEFT JOIN tag_definitions td4 ON td4.id = (a.tier4_data->'value_ids'->>0)::int
		 LEFT JOIN tag_definitions td5 ON td5.id = (a.tier5_data->'value_ids'->>0)::int
		 WHERE a.`+dataCol+`->'value_ids' @> $1::jsonb
		 ORDER BY a.processed_at DESC
		 LIMIT $2`,
		idJSON, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search by tier")
	}
	defer rows.Close()

	var hits []CallSummary
	for rows.Next() {
		var h CallSummary
		if err := rows.Scan(&h.CallID, &h.CallerID, &h.Tier1Value, &h.Tier4Value, &h.Tier5Value,
			&h.TierData, &h.Summary, &h.Confidence, &h.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier search hit")
		}
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "postgres: search by tier iterate")
}

// SearchSummaries runs a full-text search over call summaries.
func (s *PostgresStore) SearchSummaries(ctx context.Context, term string, limit int) ([]CallSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT a.call_id, a.caller_id,
		        COALESCE(td1.tag_value, ''), COALESCE(td5.tag_value, ''),
		        a.call_summary, a.confidence_score, a.processed_at
		 FROM call_analysis a
		 LEFT JOIN tag_definitions td1 ON td1.id = (a.tier1_data->'value_ids'->>0)::int
		 LEFT JOIN tag_definitions td5 ON td5.id = (a.tier5_data->'value_ids'->>0)::int
		 WHERE to_tsvector('english', a.call_summary) @@ plainto_tsquery('english', $1)
		 ORDER BY ts_rank(to_tsvector('english', a.call_summary), plainto_tsquery('english', $1)) DESC,
		          a.processed_at DESC
		 LIMIT $2`,
		term, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search summaries")
	}
	defer rows.Close()

	var hits []CallSummary
	for rows.Next() {
		var h CallSummary
		if err := rows.Scan(&h.CallID, &h.CallerID, &h.Tier1Value, &h.Tier5Value,
			&h.Summary, &h.Confidence, &h.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary hit")
		}
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "postgres: search summaries iterate")
}

// HighPriority lists calls needing operator attention: dispute candidates
// first (STRONG before REVIEW), then confirmed not-billable calls.
func (s *PostgresStore) HighPriority(ctx context.Context, limit int) ([]CallSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT a.call_id, a.caller_id,
		        COALESCE(td1.tag_value, ''), COALESCE(td5.tag_value, ''),
		        a.dispute_recommendation, a.dispute_recommendation_reason,
		        a.call_summary, a.confidence_score, a.current_revenue, a.current_billed_status, a.processed_at
		 FROM call_analysis a
		 LEFT JOIN tag_definitions td1 ON td1.id = (a.tier1_data->'value_ids'->>0)::int
		 LEFT JOIN tag_definitions td5 ON td5.id = (a.tier5_data->'value_ids'->>0)::int
		 WHERE a.dispute_recommendation IN ('REVIEW', 'STRONG')
		    OR td5.tag_value = 'DEFINITELY_NOT_BILLABLE'
		 ORDER BY
		    CASE a.dispute_recommendation
		        WHEN 'STRONG' THEN 1
		        WHEN 'REVIEW' THEN 2
		        ELSE 3
		    END,
		    a.processed_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: high priority")
	}
	defer rows.Close()

	var hits []CallSummary
	for rows.Next() {
		var h CallSummary
		var dispute string
		if err := rows.Scan(&h.CallID, &h.CallerID, &h.Tier1Value, &h.Tier5Value,
			&dispute, &h.DisputeReason, &h.Summary, &h.Confidence,
			&h.Revenue, &h.Billed, &h.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan high priority hit")
		}
		h.Dispute = model.Dispute(dispute)
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "postgres: high priority iterate")
}

// Analytics builds the tier/dispute breakdown report for a date range in a
// single materialized scan.
func (s *PostgresStore) Analytics(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	var report json.RawMessage
	err := s.pool.QueryRow(ctx,
		`WITH base AS MATERIALIZED (
			SELECT
				td1.tag_value AS tier1,
				td4.tag_value AS tier4,
				td5.tag_value AS tier5,
				a.dispute_recommendation,
				a.confidence_score,
				a.current_revenue
			FROM call_analysis a
			LEFT JOIN tag_definitions td1 ON td1.id = (a.tier1_data->'value_ids'->>0)::int
			LEFT JOIN tag_definitions td4 ON td4.id = (a.tier4_data->'value_ids'->>0)::int
			LEFT JOIN tag_definitions td5 ON td5.id = (a.tier5_data->'value_ids'->>0)::int
			WHERE a.processed_at BETWEEN $1 AND $2
		 )
		 SELECT json_build_object(
			'period',           json_build_object('start', $1::timestamptz, 'end', $2::timestamptz),
			'total_calls',      (SELECT COUNT(*) FROM base),
			'tier1_breakdown',  (
				SELECT json_agg(row_to_json(t))
				FROM (SELECT tier1 AS tier1_value, COUNT(*) AS count
				      FROM base GROUP BY tier1 ORDER BY count DESC) t
			),
			'tier4_breakdown',  (
				SELECT json_agg(row_to_json(t))
				FROM (SELECT tier4 AS tier4_value, COUNT(*) AS count
				      FROM base GROUP BY tier4 ORDER BY count DESC) t
			),
			'tier5_breakdown',  (
				SELECT json_agg(row_to_json(t))
				FROM (SELECT tier5 AS tier5_value, COUNT(*) AS count,
				             AVG(current_revenue) AS avg_revenue
				      FROM base GROUP BY tier5 ORDER BY count DESC) t
			),
			'dispute_breakdown',(
				SELECT json_agg(row_to_json(t))
				FROM (SELECT dispute_recommendation, COUNT(*) AS count
				      FROM base GROUP BY dispute_recommendation ORDER BY count DESC) t
			),
			'avg_confidence',   (SELECT AVG(confidence_score) FROM base)
		 ) AS report`,
		start, end,
	).Scan(&report)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: analytics")
	}
	return report, nil
}
