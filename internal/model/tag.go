package model

import "time"

// TierCount is the number of fixed classification axes.
const TierCount = 10

// SelectionMode says whether a tier admits one tag or many.
type SelectionMode int

const (
	// SingleSelect tiers hold at most one tag per call.
	SingleSelect SelectionMode = iota
	// MultiSelect tiers hold zero or more tags per call.
	MultiSelect
)

func (m SelectionMode) String() string {
	if m == SingleSelect {
		return "single"
	}
	return "multi"
}

// TierMode returns the selection mode for a tier number (1-10).
// Tiers 1, 4 and 5 (primary outcome, appliance type, billing indicator)
// are single-select; all others are multi-select.
func TierMode(tier int) SelectionMode {
	switch tier {
	case 1, 4, 5:
		return SingleSelect
	default:
		return MultiSelect
	}
}

// TagDefinition is one entry in the fixed tag vocabulary. IDs are stable and
// never reused; Value is the symbolic name the classifier emits.
type TagDefinition struct {
	ID          int       `json:"id"`
	Value       string    `json:"tag_value"`
	Tier        int       `json:"tier"`
	Priority    string    `json:"priority"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// CallTag materializes "this call carries this tag" for direct querying.
// Composite identity is (CallID, TagID).
type CallTag struct {
	CallID     int64     `json:"call_id"`
	TagID      int       `json:"tag_id"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// TagStat is one row of the tag usage report.
type TagStat struct {
	Value         string  `json:"tag_value"`
	Tier          int     `json:"tier"`
	Priority      string  `json:"priority"`
	UsageCount    int     `json:"usage_count"`
	AvgConfidence float64 `json:"avg_confidence"`
}
