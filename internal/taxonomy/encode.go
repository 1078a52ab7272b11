package taxonomy

import (
	"time"

	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/model"
)

// sentinel value the classifier may emit for "could not determine";
// never resolved against the vocabulary.
const unknownValue = "UNKNOWN"

// Encode converts a validated classifier output into the id-keyed Analysis
// for one call. Unknown tag values are dropped with a warning — vocabulary
// drift degrades the result, it never fails the call. Reasons are re-keyed
// from tag value to tag id so stored payloads only reference stable ids.
func Encode(call model.Call, out *model.ClassifierOutput, vocab *Vocabulary, elapsed time.Duration, modelID string) *model.Analysis {
	a := &model.Analysis{
		CallID:          call.ID,
		CallerID:        out.CallerID,
		Confidence:      out.Confidence,
		Dispute:         out.Dispute,
		DisputeReason:   out.DisputeReason,
		Summary:         out.Summary,
		CustomerInfo:    out.CustomerInfo,
		SystemDuplicate: out.Duplicate,
		Revenue:         out.Revenue,
		Billed:          out.Billed,
		ProcessingMs:    int(elapsed.Milliseconds()),
		Model:           modelID,
	}
	if a.CallerID == "" {
		a.CallerID = call.CallerID
	}
	if a.CustomerInfo == nil {
		a.CustomerInfo = map[string]string{}
	}
	if !call.CallTime.IsZero() {
		t := call.CallTime
		a.CallTime = &t
	}

	for tier := 1; tier <= model.TierCount; tier++ {
		sel := model.NewTierSelection(tier)
		switch model.TierMode(tier) {
		case model.SingleSelect:
			choice := out.Single(tier)
			if choice.Value != "" && choice.Value != unknownValue {
				if id, ok := resolve(vocab, tier, call.ID, choice.Value); ok {
					sel.Add(id, choice.Reason)
				}
			}
		case model.MultiSelect:
			choice := out.Multi(tier)
			for _, value := range choice.Values {
				if value == "" || value == unknownValue {
					continue
				}
				id, ok := resolve(vocab, tier, call.ID, value)
				if !ok {
					continue
				}
				sel.Add(id, choice.Reasons[value])
			}
		}
		a.Tiers[tier-1] = sel
	}

	return a
}

func resolve(vocab *Vocabulary, tier int, callID int64, value string) (int, bool) {
	def, ok := vocab.Resolve(value)
	if !ok {
		zap.L().Warn("taxonomy: unknown tag value, skipping",
			zap.String("tag_value", value),
			zap.Int("tier", tier),
			zap.Int64("call_id", callID),
		)
		return 0, false
	}
	if def.Tier != tier {
		zap.L().Warn("taxonomy: tag value resolved to a different tier, skipping",
			zap.String("tag_value", value),
			zap.Int("expected_tier", tier),
			zap.Int("actual_tier", def.Tier),
			zap.Int64("call_id", callID),
		)
		return 0, false
	}
	return def.ID, true
}

// Decode maps a tier selection's ids back to symbolic tag values via the
// vocabulary. Ids no longer present in the vocabulary are skipped.
func Decode(sel model.TierSelection, vocab *Vocabulary) []string {
	values := make([]string, 0, len(sel.TagIDs))
	for _, id := range sel.TagIDs {
		if def, ok := vocab.Lookup(id); ok {
			values = append(values, def.Value)
		}
	}
	return values
}
