package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstia/call-tagging/internal/model"
)

func TestParseOutput_Valid(t *testing.T) {
	out, err := parseOutput([]byte(validOutputJSON("CA-1")))
	require.NoError(t, err)
	assert.Equal(t, "CA-1", out.CallerID)
	assert.Equal(t, "QUALIFIED_APPOINTMENT_SET", out.Tier1.Value)
	assert.Equal(t, []string{"URGENT_REPAIR_NEEDED"}, out.Tier3.Values)
	assert.Equal(t, model.DisputeNone, out.Dispute)
}

func TestParseOutput_MissingTier1Fails(t *testing.T) {
	_, err := parseOutput([]byte(`{
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "r"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier1")
}

func TestParseOutput_MissingTier5Fails(t *testing.T) {
	_, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier5")
}

func TestParseOutput_DefaultsApplied(t *testing.T) {
	out, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"},
		"tier5": {"value": "QUESTIONABLE_BILLING", "reason": "r"}
	}`))
	require.NoError(t, err)

	// Missing tier4 gets the unknown-appliance default.
	assert.Equal(t, "UNKNOWN_APPLIANCE", out.Tier4.Value)

	// Missing multi-select tiers default to empty, never nil reasons.
	for _, n := range []int{2, 3, 6, 7, 8, 9, 10} {
		mc := out.Multi(n)
		require.NotNil(t, mc, "tier %d", n)
		assert.Empty(t, mc.Values, "tier %d", n)
		assert.NotNil(t, mc.Reasons, "tier %d", n)
	}

	assert.InDelta(t, 0.5, out.Confidence, 0.001)
	assert.Equal(t, model.DisputeNone, out.Dispute)
	assert.Equal(t, "", out.Summary)
	assert.NotNil(t, out.CustomerInfo)
}

func TestParseOutput_InvalidDisputeDefaultsToNone(t *testing.T) {
	out, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"},
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "r"},
		"dispute_recommendation": "MAYBE",
		"dispute_recommendation_reason": "should be cleared"
	}`))
	require.NoError(t, err)
	assert.Equal(t, model.DisputeNone, out.Dispute)
	assert.Equal(t, "", out.DisputeReason)
}

func TestParseOutput_ConfidenceClamped(t *testing.T) {
	out, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"},
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "r"},
		"confidence_score": 1.7
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Confidence)
}

func TestParseOutput_ExplicitZeroConfidenceKept(t *testing.T) {
	out, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"},
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "r"},
		"confidence_score": 0
	}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Confidence)
}

func TestParseOutput_StringValueCoercedToArray(t *testing.T) {
	out, err := parseOutput([]byte(`{
		"tier1": {"value": "INFORMATION_ONLY_CALL", "reason": "r"},
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "r"},
		"tier3": {"values": "URGENT_REPAIR_NEEDED", "reasons": {"URGENT_REPAIR_NEEDED": "broken"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"URGENT_REPAIR_NEEDED"}, out.Tier3.Values)
}

func TestParseOutput_MalformedJSON(t *testing.T) {
	_, err := parseOutput([]byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse model output")
}
