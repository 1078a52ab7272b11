package classifier

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/adstia/call-tagging/internal/model"
)

// unknownAppliance is substituted when the model omits the appliance tier.
const unknownAppliance = "UNKNOWN_APPLIANCE"

// parseOutput decodes and validates raw model content. With json_schema mode
// the structure is enforced upstream, so this mostly matters for the
// json_object fallback: missing multi-select tiers default to empty, missing
// optional scalars are defaulted, and only the two mandatory single-select
// tiers (primary outcome, billing indicator) cause a hard failure.
func parseOutput(content []byte) (*model.ClassifierOutput, error) {
	var raw struct {
		model.ClassifierOutput
		Confidence *float64 `json:"confidence_score"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, eris.Wrap(err, "classifier: parse model output")
	}

	out := raw.ClassifierOutput

	if out.Tier1.Value == "" {
		return nil, eris.New("classifier: output missing tier1.value (primary outcome)")
	}
	if out.Tier5.Value == "" {
		return nil, eris.New("classifier: output missing tier5.value (billing indicator)")
	}
	if out.Tier4.Value == "" {
		out.Tier4 = model.SingleChoice{
			Value:  unknownAppliance,
			Reason: "Could not determine from transcript",
		}
	}

	for n := 1; n <= model.TierCount; n++ {
		if mc := out.Multi(n); mc != nil && mc.Reasons == nil {
			mc.Reasons = map[string]string{}
		}
	}

	if raw.Confidence != nil {
		out.Confidence = *raw.Confidence
	} else {
		out.Confidence = 0.5
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	if !out.Dispute.Valid() {
		out.Dispute = model.DisputeNone
	}
	if out.Dispute == model.DisputeNone {
		out.DisputeReason = ""
	}
	if out.CustomerInfo == nil {
		out.CustomerInfo = map[string]string{}
	}

	return &out, nil
}
