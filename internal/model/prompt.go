package model

import "time"

// Prompt is one version of a campaign's classification system prompt. Only
// one row per campaign is active at a time; creating a new version
// deactivates the prior active row.
type Prompt struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	CampaignName string    `json:"campaign_name,omitempty"`
	Version      string    `json:"prompt_version"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Active       bool      `json:"is_active"`
	Notes        string    `json:"notes,omitempty"`
	PromptChars  int       `json:"prompt_chars"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
