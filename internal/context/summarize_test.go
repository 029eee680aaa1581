package context

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/quill/internal/models"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// fakeClient scripts per-model behavior for chain tests.
type fakeClient struct {
	responses map[string]string // model -> summary
	errs      map[string]error  // model -> permanent error
	failTimes map[string]int    // model -> failures before success
	calls     []string
}

func (f *fakeClient) Summarize(ctx context.Context, model, prompt string) (string, error) {
	f.calls = append(f.calls, model)
	if n, ok := f.failTimes[model]; ok && n > 0 {
		f.failTimes[model] = n - 1
		return "", errors.New("500 internal server error")
	}
	if err, ok := f.errs[model]; ok {
		return "", err
	}
	if resp, ok := f.responses[model]; ok {
		return resp, nil
	}
	return "", errors.New("model not found")
}

func fastChain(modelIDs ...string) []models.ChainStep {
	chain := models.BuildChain(modelIDs...)
	for i := range chain {
		chain[i].Timeout = time.Second
		chain[i].MaxRetries = 2
		chain[i].RetryDelay = time.Millisecond
	}
	return chain
}

func testSummarizer(client SummaryClient, modelIDs ...string) *Summarizer {
	return NewSummarizer(SummarizerOptions{
		Chain:   fastChain(modelIDs...),
		Factory: func(model string) (SummaryClient, error) { return client, nil },
		Now:     fixedNow(5000),
	})
}

func longConversation(n, chars int) []qmodels.ContextMessage {
	msgs := make([]qmodels.ContextMessage, n)
	for i := range msgs {
		role := qmodels.RoleUser
		if i%2 == 1 {
			role = qmodels.RoleAssistant
		}
		msgs[i] = qmodels.ContextMessage{
			ID:      fmt.Sprintf("m%d", i),
			Role:    role,
			Content: strings.Repeat("w", chars),
		}
	}
	return msgs
}

func TestSummarizeRange_Success(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"claude-3-5-haiku-latest": "short summary"}}
	s := testSummarizer(client, "claude-3-5-haiku-latest")
	msgs := longConversation(10, 200)

	result, err := s.SummarizeRange(context.Background(), msgs, 0, 6)
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}

	if result.CondenseID == "" {
		t.Error("empty condense id")
	}
	if len(result.Stamped) != 6 {
		t.Fatalf("stamped %d messages", len(result.Stamped))
	}
	for _, m := range result.Stamped {
		if m.CondenseID != result.CondenseID {
			t.Error("original missing condense id")
		}
	}
	if result.Summary.ParentID != result.CondenseID {
		t.Error("summary parent id mismatch")
	}
	if !IsSummaryMessage(&result.Summary) {
		t.Error("summary message not flagged")
	}
	if result.Summary.Role != qmodels.RoleAssistant {
		t.Errorf("summary role = %s", result.Summary.Role)
	}
	if result.SummaryTokens >= result.OriginalTokens {
		t.Errorf("summary %d tokens vs original %d", result.SummaryTokens, result.OriginalTokens)
	}

	// Originals untouched.
	for _, m := range msgs {
		if m.CondenseID != "" {
			t.Error("input messages stamped in place")
		}
	}
}

func TestSummarizeRange_FallbackChain(t *testing.T) {
	client := &fakeClient{
		errs:      map[string]error{"primary": errors.New("401 unauthorized")},
		responses: map[string]string{"backup": "summary text"},
	}
	s := testSummarizer(client, "primary", "backup")
	msgs := longConversation(8, 200)

	result, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}
	if result.Model != "backup" {
		t.Errorf("Model = %s, want backup", result.Model)
	}
	// Auth error is not retryable on the same model: one attempt on primary.
	primaryAttempts := 0
	for _, a := range result.Attempts {
		if a.Model == "primary" {
			primaryAttempts++
		}
	}
	if primaryAttempts != 1 {
		t.Errorf("primary attempts = %d, want 1", primaryAttempts)
	}
}

func TestSummarizeRange_RetriesTransient(t *testing.T) {
	client := &fakeClient{
		failTimes: map[string]int{"flaky": 1},
		responses: map[string]string{"flaky": "recovered summary"},
	}
	s := testSummarizer(client, "flaky")
	msgs := longConversation(8, 200)

	result, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("attempts = %+v", result.Attempts)
	}
	if result.Attempts[0].Success || !result.Attempts[1].Success {
		t.Errorf("attempt history = %+v", result.Attempts)
	}
}

func TestSummarizeRange_AllModelsFailed(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{
			"a": errors.New("503 unavailable"),
			"b": errors.New("429 too many requests"),
		},
	}
	s := testSummarizer(client, "a", "b")
	msgs := longConversation(8, 200)

	_, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	ce, ok := AsCompactionError(err)
	if !ok || ce.Code != CompactionAllModelsFailed {
		t.Fatalf("err = %v", err)
	}
	attempted, _ := ce.Details["attempted_models"].([]string)
	if len(attempted) != 2 {
		t.Errorf("attempted_models = %v", ce.Details["attempted_models"])
	}
	if total, _ := ce.Details["total_attempts"].(int); total < 2 {
		t.Errorf("total_attempts = %v", ce.Details["total_attempts"])
	}
}

func TestSummarizeRange_GrowthValidator(t *testing.T) {
	huge := strings.Repeat("inflated ", 500)
	client := &fakeClient{responses: map[string]string{"m": huge}}
	s := testSummarizer(client, "m")
	msgs := longConversation(8, 20) // tiny originals

	_, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	ce, ok := AsCompactionError(err)
	if !ok || ce.Code != CompactionContextGrowth {
		t.Fatalf("err = %v", err)
	}
	if ce.Details["original_tokens"] == nil || ce.Details["resulting_tokens"] == nil || ce.Details["ratio"] == nil {
		t.Errorf("details = %+v", ce.Details)
	}
}

func TestSummarizeRange_EmptySummary(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m": "   "}}
	s := testSummarizer(client, "m")
	msgs := longConversation(8, 200)

	_, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	ce, ok := AsCompactionError(err)
	if !ok || ce.Code != CompactionInvalidSummary {
		t.Fatalf("err = %v", err)
	}
}

func TestSummarizeRange_InvalidRange(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m": "s"}}
	s := testSummarizer(client, "m")
	msgs := longConversation(4, 20)

	for _, bounds := range [][2]int{{2, 2}, {3, 1}, {-1, 2}, {0, 99}} {
		_, err := s.SummarizeRange(context.Background(), msgs, bounds[0], bounds[1])
		if _, ok := AsCompactionError(err); !ok {
			t.Errorf("range %v: err = %v", bounds, err)
		}
	}
}

func TestSummarizeRange_Cancellation(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m": "summary"}}
	s := testSummarizer(client, "m")
	msgs := longConversation(8, 200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SummarizeRange(ctx, msgs, 0, 8)
	if !errors.Is(err, models.ErrAborted) {
		t.Errorf("err = %v, want ErrAborted", err)
	}
}

func TestSummarizeRange_ThinkingBlock(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"deepseek-chat": "summary"}}
	s := testSummarizer(client, "deepseek-chat")
	msgs := longConversation(8, 200)

	result, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}
	if len(result.Summary.Blocks) != 2 || result.Summary.Blocks[0].Type != qmodels.BlockThinking {
		t.Errorf("blocks = %+v", result.Summary.Blocks)
	}
}

func TestSummarizeRange_ChunksLargeRanges(t *testing.T) {
	client := &fakeClient{responses: map[string]string{"m": "chunk or merged summary"}}
	s := NewSummarizer(SummarizerOptions{
		Chain:          fastChain("m"),
		Factory:        func(model string) (SummaryClient, error) { return client, nil },
		MaxChunkTokens: 100,
		Now:            fixedNow(5000),
	})
	msgs := longConversation(8, 200) // ~54 tokens each, forces several chunks

	result, err := s.SummarizeRange(context.Background(), msgs, 0, 8)
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}
	// Per-chunk calls plus the merge pass.
	if len(client.calls) < 3 {
		t.Errorf("calls = %d, want chunked summarization", len(client.calls))
	}
	if result.Summary.ID == "" {
		t.Error("missing summary id")
	}
}
