package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstia/call-tagging/internal/model"
	"github.com/adstia/call-tagging/internal/resilience"
	"github.com/adstia/call-tagging/pkg/openrouter"
)

func validOutputJSON(callerID string) string {
	return fmt.Sprintf(`{
		"callerId": %q,
		"tier1": {"value": "QUALIFIED_APPOINTMENT_SET", "reason": "appointment confirmed for Tuesday"},
		"tier2": {"values": [], "reasons": {}},
		"tier3": {"values": ["URGENT_REPAIR_NEEDED"], "reasons": {"URGENT_REPAIR_NEEDED": "fridge not cooling"}},
		"tier4": {"value": "REFRIGERATOR_REPAIR", "reason": "fridge mentioned"},
		"tier5": {"value": "LIKELY_BILLABLE", "reason": "Currently billed at $35 (billed=true). Duration 120s"},
		"tier6": {"values": [], "reasons": {}},
		"tier7": {"values": [], "reasons": {}},
		"tier8": {"values": [], "reasons": {}},
		"tier9": {"values": [], "reasons": {}},
		"tier10": {"values": [], "reasons": {}},
		"confidence_score": 0.92,
		"dispute_recommendation": "NONE",
		"dispute_recommendation_reason": "",
		"call_summary": "Customer booked a fridge repair appointment.",
		"extracted_customer_info": {},
		"system_duplicate": false,
		"current_revenue": 35,
		"current_billed_status": true
	}`, callerID)
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":    "gen-1",
		"model": "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{},
	})
	return string(b)
}

func fastClassifierConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
	return cfg
}

func testCall() model.Call {
	return model.Call{
		ID:         7,
		CallerID:   "CA-7001",
		CampaignID: "camp-1",
		Transcript: "Agent: Hello\nCustomer: My fridge is broken",
		Duration:   120,
		Revenue:    35,
		Billed:     true,
	}
}

func TestClassify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openrouter.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "campaign prompt here", req.Messages[0].Content)
		assert.Contains(t, req.Messages[1].Content, "Analyze this call:")
		assert.Contains(t, req.Messages[1].Content, "CA-7001")
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(validOutputJSON("CA-7001"))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	out, elapsed, err := c.Classify(context.Background(), testCall(), "campaign prompt here")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "CA-7001", out.CallerID)
	assert.Equal(t, "QUALIFIED_APPOINTMENT_SET", out.Tier1.Value)
	assert.Equal(t, "LIKELY_BILLABLE", out.Tier5.Value)
	assert.InDelta(t, 0.92, out.Confidence, 0.001)
	assert.Greater(t, elapsed, time.Duration(0))
}

func TestClassify_SchemaFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openrouter.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if calls.Add(1) == 1 {
			assert.Equal(t, "json_schema", req.ResponseFormat.Type)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"json_schema is not supported by this model"}}`))
			return
		}

		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Nil(t, req.ResponseFormat.JSONSchema)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(validOutputJSON("CA-7001"))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	out, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "QUALIFIED_APPOINTMENT_SET", out.Tier1.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(validOutputJSON("CA-7001"))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	out, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "CA-7001", out.CallerID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassify_RetriesProviderRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid request"}}`))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	_, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassify_RetriesMalformedCompletion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			// The model ignored the response format on the first try.
			_, _ = w.Write([]byte(completionBody(`I am unable to classify this call.`)))
			return
		}
		_, _ = w.Write([]byte(completionBody(validOutputJSON("CA-7001"))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	out, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "QUALIFIED_APPOINTMENT_SET", out.Tier1.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify_CallerIDFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(validOutputJSON(""))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	out, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "CA-7001", out.CallerID)
}

func TestClassifyGroup_IsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openrouter.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// The payload for call CA-BAD yields a malformed model response;
		// every other call succeeds.
		if strings.Contains(req.Messages[1].Content, "CA-BAD") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody(`not json at all`)))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(validOutputJSON("ok"))))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	group := Group{
		Prompt: "prompt",
		Calls: []model.Call{
			{ID: 1, CallerID: "CA-1", Transcript: "t"},
			{ID: 2, CallerID: "CA-BAD", Transcript: "t"},
			{ID: 3, CallerID: "CA-3", Transcript: "t"},
		},
	}

	results := c.ClassifyGroup(context.Background(), group)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Output)
	assert.Equal(t, int64(1), results[0].Call.ID)

	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Output)

	assert.NoError(t, results[2].Err)
	assert.NotNil(t, results[2].Output)
}

func TestClassifyGroup_EmptyGroup(t *testing.T) {
	c := New(openrouter.NewClient("key"), fastClassifierConfig())
	results := c.ClassifyGroup(context.Background(), Group{Prompt: "p"})
	assert.Empty(t, results)
}

func TestProviderDown_AfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer srv.Close()

	c := New(openrouter.NewClient("key", openrouter.WithBaseURL(srv.URL)), fastClassifierConfig())
	assert.False(t, c.ProviderDown())

	// Two calls of three attempts each cross the default threshold of five.
	_, _, err := c.Classify(context.Background(), testCall(), "prompt")
	require.Error(t, err)
	_, _, err = c.Classify(context.Background(), testCall(), "prompt")
	require.Error(t, err)

	assert.True(t, c.ProviderDown())
}
