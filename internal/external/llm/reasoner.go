package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/config"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

const defaultMaxTokens = 1500

// ErrEmptyCompletion the model returned no choices or blank content
var ErrEmptyCompletion = errors.New("empty completion")

const systemPrompt = `You are a portfolio allocation analyst. Given investable capital, a risk tolerance from 1 (cautious) to 10 (aggressive) and a market snapshot, propose an allocation.

Respond with a single JSON object and nothing else, shaped exactly as:
{
  "allocation": [
    {"assetClass": string, "percentage": number, "reasoning": string, "recommendedAssets": [string]}
  ],
  "riskScore": number,
  "totalProjectedReturn": "X.XX%",
  "agentSummary": string
}

Rules: percentages are 0-100 and sum to at most 100; sort allocation by percentage descending; omit positions under 1%; riskScore echoes the risk tolerance.`

// Reasoner is the qualitative allocation tier backed by a chat completion model
// ⭐ SSOT: every LLM call is made here
type Reasoner struct {
	cli       oa.Client
	model     string
	maxTokens int64
	logger    *logger.Logger
}

var _ contracts.Reasoner = (*Reasoner)(nil)

// NewReasoner creates a reasoner from LLM config
func NewReasoner(cfg config.LLMConfig, log *logger.Logger) *Reasoner {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return NewReasonerWithOptions(cfg.Model, log, opts...)
}

// NewReasonerWithOptions creates a reasoner with raw client options
func NewReasonerWithOptions(model string, log *logger.Logger, opts ...option.RequestOption) *Reasoner {
	if log == nil {
		log = logger.Nop()
	}
	return &Reasoner{
		cli:       oa.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		logger:    log.Component("llm"),
	}
}

// Reason asks the model for a plan and enforces the AllocationPlan shape
func (r *Reasoner) Reason(ctx context.Context, req contracts.QualitativeRequest) (*contracts.AllocationPlan, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal qualitative request: %w", err)
	}

	resp, err := r.cli.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: oa.ChatModel(r.model),
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(systemPrompt),
			oa.UserMessage("Allocate this request:\n" + string(payload)),
		},
		MaxTokens:   oa.Int(r.maxTokens),
		Temperature: oa.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}
	content := stripFences(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, ErrEmptyCompletion
	}

	plan, err := contracts.DecodePlan([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("qualitative response: %w", err)
	}
	plan.SortByPercentage()

	r.logger.WithFields(map[string]interface{}{
		"model":      r.model,
		"line_items": plan.Count(),
		"tokens":     resp.Usage.TotalTokens,
	}).Debug("Qualitative plan received")

	return plan, nil
}

// stripFences removes a surrounding ```json ... ``` block if present
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // language tag
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
