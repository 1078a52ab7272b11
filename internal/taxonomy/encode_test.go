package taxonomy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstia/call-tagging/internal/model"
)

func testVocabulary() *Vocabulary {
	return NewVocabulary([]model.TagDefinition{
		{ID: 3, Value: "APPOINTMENT_SET", Tier: 1},
		{ID: 11, Value: "PRICE_SENSITIVE", Tier: 2},
		{ID: 12, Value: "REPEAT_CALLER", Tier: 2},
		{ID: 42, Value: "DRYER", Tier: 4},
		{ID: 51, Value: "BILLABLE", Tier: 5},
		{ID: 90, Value: "CALLBACK_REQUESTED", Tier: 10},
	})
}

func testEncodeCall() model.Call {
	return model.Call{
		ID:       7,
		CallerID: "CA-7001",
		CallTime: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		Revenue:  42.50,
	}
}

func validEncodeOutput() *model.ClassifierOutput {
	return &model.ClassifierOutput{
		CallerID: "CA-7001",
		Tier1:    model.SingleChoice{Value: "APPOINTMENT_SET", Reason: "caller booked a visit"},
		Tier2: model.MultiChoice{
			Values:  []string{"PRICE_SENSITIVE", "REPEAT_CALLER"},
			Reasons: map[string]string{"PRICE_SENSITIVE": "asked about cost twice"},
		},
		Tier4:      model.SingleChoice{Value: "DRYER"},
		Tier5:      model.SingleChoice{Value: "BILLABLE", Reason: "service scheduled"},
		Tier10:     model.MultiChoice{Values: []string{"CALLBACK_REQUESTED"}},
		Confidence: 0.85,
		Dispute:    model.DisputeNone,
		Summary:    "Booked a dryer repair.",
	}
}

func TestEncode_ResolvesNamesToIDs(t *testing.T) {
	a := Encode(testEncodeCall(), validEncodeOutput(), testVocabulary(), 1500*time.Millisecond, "openai/gpt-4o-mini")

	assert.Equal(t, int64(7), a.CallID)
	assert.Equal(t, "CA-7001", a.CallerID)
	assert.Equal(t, []int{3}, a.Tier(1).TagIDs)
	assert.Equal(t, "caller booked a visit", a.Tier(1).Reasons[3])
	assert.ElementsMatch(t, []int{11, 12}, a.Tier(2).TagIDs)
	assert.Equal(t, "asked about cost twice", a.Tier(2).Reasons[11])
	assert.Equal(t, []int{42}, a.Tier(4).TagIDs)
	assert.Equal(t, []int{90}, a.Tier(10).TagIDs)
	assert.Equal(t, 1500, a.ProcessingMs)
	assert.Equal(t, "openai/gpt-4o-mini", a.Model)
	require.NotNil(t, a.CallTime)
	assert.Equal(t, testEncodeCall().CallTime, *a.CallTime)
}

func TestEncode_DropsUnknownValues(t *testing.T) {
	out := validEncodeOutput()
	out.Tier2.Values = append(out.Tier2.Values, "NOT_IN_VOCABULARY")

	a := Encode(testEncodeCall(), out, testVocabulary(), 0, "")
	assert.ElementsMatch(t, []int{11, 12}, a.Tier(2).TagIDs)
}

func TestEncode_DropsWrongTierValues(t *testing.T) {
	out := validEncodeOutput()
	// BILLABLE belongs to tier 5, not tier 2.
	out.Tier2.Values = []string{"BILLABLE"}

	a := Encode(testEncodeCall(), out, testVocabulary(), 0, "")
	assert.Empty(t, a.Tier(2).TagIDs)
}

func TestEncode_UnknownSentinelNeverResolved(t *testing.T) {
	out := validEncodeOutput()
	out.Tier4 = model.SingleChoice{Value: "UNKNOWN"}

	a := Encode(testEncodeCall(), out, testVocabulary(), 0, "")
	assert.Empty(t, a.Tier(4).TagIDs)
}

func TestEncode_FallsBackToCallCallerID(t *testing.T) {
	out := validEncodeOutput()
	out.CallerID = ""

	a := Encode(testEncodeCall(), out, testVocabulary(), 0, "")
	assert.Equal(t, "CA-7001", a.CallerID)
}

func TestEncode_AllTiersPresentEvenWhenEmpty(t *testing.T) {
	out := &model.ClassifierOutput{
		Tier1:      model.SingleChoice{Value: "APPOINTMENT_SET"},
		Tier5:      model.SingleChoice{Value: "BILLABLE"},
		Confidence: 0.5,
		Dispute:    model.DisputeNone,
	}

	a := Encode(testEncodeCall(), out, testVocabulary(), 0, "")
	for n := 1; n <= model.TierCount; n++ {
		sel := a.Tier(n)
		assert.Equal(t, n, sel.Tier)
		assert.Equal(t, model.TierMode(n), sel.Mode)
		assert.NotNil(t, sel.TagIDs)
	}
	assert.NotNil(t, a.CustomerInfo)
}

func TestDecode_RoundTripsThroughVocabulary(t *testing.T) {
	vocab := testVocabulary()
	a := Encode(testEncodeCall(), validEncodeOutput(), vocab, 0, "")

	values := Decode(*a.Tier(2), vocab)
	assert.ElementsMatch(t, []string{"PRICE_SENSITIVE", "REPEAT_CALLER"}, values)
}

func TestDecode_SkipsRetiredIDs(t *testing.T) {
	sel := model.NewTierSelection(2)
	sel.Add(11, "")
	sel.Add(9999, "")

	values := Decode(sel, testVocabulary())
	assert.Equal(t, []string{"PRICE_SENSITIVE"}, values)
}

func TestVocabulary_LastDuplicateWins(t *testing.T) {
	v := NewVocabulary([]model.TagDefinition{
		{ID: 1, Value: "DRYER", Tier: 4},
		{ID: 2, Value: "DRYER", Tier: 4},
	})
	def, ok := v.Resolve("DRYER")
	require.True(t, ok)
	assert.Equal(t, 2, def.ID)
}
