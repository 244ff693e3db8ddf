package app

import (
	"context"
	"time"

	"aria/internal/assistant/domain"
	"aria/internal/assistant/ports"
	"aria/internal/shared/jsonx"
	"aria/internal/shared/logging"

	"github.com/kaptinlin/jsonrepair"
)

// Classification is the classifier's full output for one utterance. When the
// model answered conversationally instead of calling a function, Reply holds
// its text and Intent is the none intent.
type Classification struct {
	Intent domain.Intent
	Reply  string
}

// Classifier turns the latest utterance plus conversation context into a
// structured intent through schema-constrained function calling.
type Classifier struct {
	llm          ports.LLMClient
	logger       logging.Logger
	historyLimit int
	temperature  float64
	now          func() time.Time
}

// ClassifierOption customizes classifier construction.
type ClassifierOption func(*Classifier)

// WithHistoryLimit caps how many recent messages accompany the utterance.
func WithHistoryLimit(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithClassifierNow injects a clock for tests.
func WithClassifierNow(now func() time.Time) ClassifierOption {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier creates a classifier over the given LLM client.
func NewClassifier(llm ports.LLMClient, logger logging.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		llm:          llm,
		logger:       logging.OrNop(logger),
		historyLimit: 8,
		temperature:  0.1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify interprets the conversation's latest user message. It never
// returns an error: any failure along the way (provider down, malformed
// arguments, unknown function name) degrades to the none intent so the turn
// stays conversational.
func (c *Classifier) Classify(ctx context.Context, conv *domain.Conversation, timezone string) Classification {
	messages := make([]domain.Message, 0, c.historyLimit+1)
	messages = append(messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: classifierSystemPrompt(c.now(), timezone, conv.Pending),
	})
	messages = append(messages, conv.Recent(c.historyLimit)...)

	resp, err := c.llm.Complete(ctx, ports.CompletionRequest{
		Messages:    messages,
		Tools:       toolDefinitions(),
		Temperature: c.temperature,
	})
	if err != nil {
		c.logger.Warn("classification failed, treating turn as conversational: %v", err)
		return Classification{Intent: domain.NoneIntent()}
	}

	if len(resp.ToolCalls) == 0 {
		return Classification{Intent: domain.NoneIntent(), Reply: resp.Content}
	}

	call := resp.ToolCalls[0]
	action, ok := domain.ParseAction(call.Name)
	if !ok {
		c.logger.Warn("model called unknown function %q", call.Name)
		return Classification{Intent: domain.NoneIntent()}
	}

	params, err := decodeArguments(call.Arguments)
	if err != nil {
		c.logger.Warn("unusable arguments for %s: %v", call.Name, err)
		return Classification{Intent: domain.NoneIntent()}
	}

	confidence, reported := popConfidence(params)
	if !reported {
		confidence = proxyConfidence(action, params)
		c.logger.Debug("model omitted confidence for %s, using proxy %.2f", action, confidence)
	}

	return Classification{Intent: domain.Intent{
		Action:     action,
		Confidence: confidence,
		Params:     params,
	}}
}

// decodeArguments parses the tool-call argument payload, repairing the JSON
// once when primary parsing fails. Models under pressure emit trailing
// commas, single quotes, and truncated objects often enough that the repair
// path earns its keep.
func decodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := jsonx.Unmarshal([]byte(raw), &params); err == nil {
		return params, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, repairErr
	}
	if err := jsonx.Unmarshal([]byte(repaired), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// popConfidence extracts and removes the self-reported confidence parameter,
// clamping it into [0, 1].
func popConfidence(params map[string]any) (float64, bool) {
	v, ok := params["confidence"]
	if !ok {
		return 0, false
	}
	delete(params, "confidence")
	var confidence float64
	switch n := v.(type) {
	case float64:
		confidence = n
	case jsonx.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		confidence = f
	case int:
		confidence = float64(n)
	default:
		return 0, false
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence, true
}

// proxyConfidence is the deterministic stand-in when the model does not
// report one: calling a known function with every required parameter filled
// is treated as a confident classification, a partial call as a tentative
// one. Both sit on the cautious side of typical self-reports.
func proxyConfidence(action domain.Action, params map[string]any) float64 {
	for _, name := range domain.RequiredParams(action) {
		if paramEmpty(params[name]) {
			return 0.5
		}
	}
	return 0.75
}

func paramEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}
