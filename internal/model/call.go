// Package model defines the domain types shared across the call tagging pipeline.
package model

import "time"

// Call is one inbound call record pending or having undergone classification.
type Call struct {
	ID          int64      `json:"id"`
	CallerID    string     `json:"caller_id"`
	CampaignID  string     `json:"campaign_id"`
	Transcript  string     `json:"transcript"`
	Duration    int        `json:"duration_secs"`
	CallerPhone string     `json:"caller_phone"`
	Revenue     float64    `json:"revenue"`
	Billed      bool       `json:"billed"`
	Duplicate   bool       `json:"duplicate"`
	HungUp      string     `json:"hung_up,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	State       string     `json:"state,omitempty"`
	Zip         string     `json:"zip,omitempty"`
	CallTime    time.Time  `json:"call_time"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Attempts    int        `json:"classify_attempts"`
	LastError   string     `json:"last_error,omitempty"`
}

// Payload is the structured per-call object sent to the classifier provider.
// Field names are part of the prompt contract and must stay stable.
type Payload struct {
	CallerID   string  `json:"callerId"`
	Transcript string  `json:"transcript"`
	Duration   int     `json:"callLengthInSeconds"`
	Revenue    float64 `json:"revenue"`
	Billed     bool    `json:"billed"`
	HungUp     string  `json:"hung_up"`
	Duplicate  bool    `json:"duplicate"`
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Address    *string `json:"address"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	Zip        *string `json:"zip"`
}

// ToPayload builds the classifier payload for a call. Empty customer fields
// become JSON null so the model can distinguish "missing" from "empty".
func (c Call) ToPayload() Payload {
	opt := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	hungUp := c.HungUp
	if hungUp == "" {
		hungUp = "Unknown"
	}
	return Payload{
		CallerID:   c.CallerID,
		Transcript: c.Transcript,
		Duration:   c.Duration,
		Revenue:    c.Revenue,
		Billed:     c.Billed,
		HungUp:     hungUp,
		Duplicate:  c.Duplicate,
		FirstName:  opt(c.FirstName),
		LastName:   opt(c.LastName),
		Address:    opt(c.Address),
		City:       opt(c.City),
		State:      opt(c.State),
		Zip:        opt(c.Zip),
	}
}
