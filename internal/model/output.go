package model

import "encoding/json"

// SingleChoice is the classifier's answer for a single-select tier:
// one symbolic tag value with a free-text justification.
type SingleChoice struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// MultiChoice is the classifier's answer for a multi-select tier:
// zero or more symbolic tag values, reasons keyed by value.
type MultiChoice struct {
	Values  []string          `json:"values"`
	Reasons map[string]string `json:"reasons"`
}

// UnmarshalJSON tolerates the shapes seen from json_object fallback mode:
// "values" may arrive as a bare string instead of an array, and "reasons"
// may be absent or null.
func (m *MultiChoice) UnmarshalJSON(data []byte) error {
	var raw struct {
		Values  json.RawMessage   `json:"values"`
		Reasons map[string]string `json:"reasons"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Values = nil
	if len(raw.Values) > 0 {
		switch raw.Values[0] {
		case '"':
			var s string
			if err := json.Unmarshal(raw.Values, &s); err != nil {
				return err
			}
			m.Values = []string{s}
		case '[':
			if err := json.Unmarshal(raw.Values, &m.Values); err != nil {
				return err
			}
		}
	}

	m.Reasons = raw.Reasons
	if m.Reasons == nil {
		m.Reasons = map[string]string{}
	}
	return nil
}

// ClassifierOutput is the validated, tag-name-based result returned by the
// provider for one call. The tier encoder converts it to the id-based
// Analysis; nothing downstream of the encoder sees symbolic names.
type ClassifierOutput struct {
	CallerID      string            `json:"callerId"`
	Tier1         SingleChoice      `json:"tier1"`
	Tier2         MultiChoice       `json:"tier2"`
	Tier3         MultiChoice       `json:"tier3"`
	Tier4         SingleChoice      `json:"tier4"`
	Tier5         SingleChoice      `json:"tier5"`
	Tier6         MultiChoice       `json:"tier6"`
	Tier7         MultiChoice       `json:"tier7"`
	Tier8         MultiChoice       `json:"tier8"`
	Tier9         MultiChoice       `json:"tier9"`
	Tier10        MultiChoice       `json:"tier10"`
	Confidence    float64           `json:"confidence_score"`
	Dispute       Dispute           `json:"dispute_recommendation"`
	DisputeReason string            `json:"dispute_recommendation_reason"`
	Summary       string            `json:"call_summary"`
	CustomerInfo  map[string]string `json:"extracted_customer_info"`
	Duplicate     bool              `json:"system_duplicate"`
	Revenue       float64           `json:"current_revenue"`
	Billed        bool              `json:"current_billed_status"`
}

// Single returns the single-select choice for tier n, or nil for
// multi-select tiers.
func (o *ClassifierOutput) Single(n int) *SingleChoice {
	switch n {
	case 1:
		return &o.Tier1
	case 4:
		return &o.Tier4
	case 5:
		return &o.Tier5
	}
	return nil
}

// Multi returns the multi-select choice for tier n, or nil for
// single-select tiers.
func (o *ClassifierOutput) Multi(n int) *MultiChoice {
	switch n {
	case 2:
		return &o.Tier2
	case 3:
		return &o.Tier3
	case 6:
		return &o.Tier6
	case 7:
		return &o.Tier7
	case 8:
		return &o.Tier8
	case 9:
		return &o.Tier9
	case 10:
		return &o.Tier10
	}
	return nil
}
