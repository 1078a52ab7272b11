package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Dispute is the dispute-recommendation enum for a classified call.
type Dispute string

const (
	DisputeNone   Dispute = "NONE"
	DisputeReview Dispute = "REVIEW"
	DisputeStrong Dispute = "STRONG"
)

// Valid reports whether d is one of the known dispute values.
func (d Dispute) Valid() bool {
	switch d {
	case DisputeNone, DisputeReview, DisputeStrong:
		return true
	}
	return false
}

// TierSelection is the resolved, id-keyed selection for one tier. It is the
// internal representation; the {"value_ids":[...],"reasons":{...}} JSONB
// shape exists only at the storage boundary via Marshal/UnmarshalJSON.
type TierSelection struct {
	Tier    int
	Mode    SelectionMode
	TagIDs  []int
	Reasons map[int]string
}

// NewTierSelection returns an empty selection for the given tier with the
// mode implied by the tier number.
func NewTierSelection(tier int) TierSelection {
	return TierSelection{
		Tier:    tier,
		Mode:    TierMode(tier),
		TagIDs:  []int{},
		Reasons: map[int]string{},
	}
}

// Add appends a resolved tag id with an optional reason. Single-select tiers
// keep only the first id; later additions are dropped.
func (s *TierSelection) Add(tagID int, reason string) bool {
	if s.Mode == SingleSelect && len(s.TagIDs) >= 1 {
		return false
	}
	for _, id := range s.TagIDs {
		if id == tagID {
			return false
		}
	}
	s.TagIDs = append(s.TagIDs, tagID)
	if reason != "" {
		if s.Reasons == nil {
			s.Reasons = map[int]string{}
		}
		s.Reasons[tagID] = reason
	}
	return true
}

type tierSelectionJSON struct {
	ValueIDs []int             `json:"value_ids"`
	Reasons  map[string]string `json:"reasons"`
}

// MarshalJSON serializes the storage shape with string-keyed reasons.
func (s TierSelection) MarshalJSON() ([]byte, error) {
	out := tierSelectionJSON{
		ValueIDs: s.TagIDs,
		Reasons:  make(map[string]string, len(s.Reasons)),
	}
	if out.ValueIDs == nil {
		out.ValueIDs = []int{}
	}
	for id, reason := range s.Reasons {
		out.Reasons[strconv.Itoa(id)] = reason
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a selection from its storage shape. Tier and Mode
// are not part of the payload and must be set by the caller.
func (s *TierSelection) UnmarshalJSON(data []byte) error {
	var raw tierSelectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal tier selection")
	}
	s.TagIDs = raw.ValueIDs
	if s.TagIDs == nil {
		s.TagIDs = []int{}
	}
	s.Reasons = make(map[int]string, len(raw.Reasons))
	for key, reason := range raw.Reasons {
		id, err := strconv.Atoi(key)
		if err != nil {
			return eris.Wrapf(err, "model: tier selection reason key %q", key)
		}
		s.Reasons[id] = reason
	}
	sort.Ints(s.TagIDs)
	return nil
}

// Analysis is the pipeline's persisted output for one call: one row, uniform
// across all ten tiers. Replaced wholesale on reclassification.
type Analysis struct {
	CallID          int64                    `json:"call_id"`
	CallerID        string                   `json:"caller_id"`
	CallTime        *time.Time               `json:"call_time,omitempty"`
	Tiers           [TierCount]TierSelection `json:"tiers"`
	Confidence      float64                  `json:"confidence_score"`
	Dispute         Dispute                  `json:"dispute_recommendation"`
	DisputeReason   string                   `json:"dispute_recommendation_reason,omitempty"`
	Summary         string                   `json:"call_summary"`
	CustomerInfo    map[string]string        `json:"extracted_customer_info"`
	SystemDuplicate bool                     `json:"system_duplicate"`
	Revenue         float64                  `json:"current_revenue"`
	Billed          bool                     `json:"current_billed_status"`
	ProcessingMs    int                      `json:"processing_time_ms"`
	Model           string                   `json:"model_used"`
	ProcessedAt     time.Time                `json:"processed_at,omitempty"`
}

// Tier returns the selection for tier n (1-10).
func (a *Analysis) Tier(n int) *TierSelection {
	return &a.Tiers[n-1]
}

// CallTags flattens every tier's resolved ids into join rows, deduplicated
// across tiers, all carrying the analysis confidence.
func (a *Analysis) CallTags() []CallTag {
	seen := make(map[int]bool)
	var tags []CallTag
	for i := range a.Tiers {
		for _, id := range a.Tiers[i].TagIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			tags = append(tags, CallTag{
				CallID:     a.CallID,
				TagID:      id,
				Confidence: a.Confidence,
			})
		}
	}
	return tags
}
