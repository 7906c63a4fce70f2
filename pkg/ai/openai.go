package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	reviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lms",
		Subsystem: "ai",
		Name:      "review_duration_seconds",
		Help:      "Duration of AI feedback review requests",
	}, []string{"model"})

	reviewFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms",
		Subsystem: "ai",
		Name:      "review_failures_total",
		Help:      "Number of AI feedback review failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI reviewer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIReviewer implements Reviewer against the OpenAI chat completion API.
type OpenAIReviewer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIReviewer builds a new reviewer using the provided configuration.
func NewOpenAIReviewer(cfg OpenAIConfig) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	client := openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey))

	return &OpenAIReviewer{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/openlearn/lms-api/pkg/ai/openai"),
		logger: logger,
	}, nil
}

// Review sends the request to OpenAI and parses the structured response.
func (r *OpenAIReviewer) Review(parent context.Context, input ReviewInput) (ReviewResult, error) {
	ctx, span := r.tracer.Start(parent, "openai.review", trace.WithAttributes(
		attribute.String("model", r.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: reviewerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildReviewPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := r.client.CreateChatCompletion(ctx, request)
	reviewDuration.WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReviewResult{}, fmt.Errorf("openai review: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReviewResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseReviewResponse(content)
	if err != nil {
		reviewFailures.WithLabelValues(r.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReviewResult{}, err
	}

	result.Raw = map[string]interface{}{
		"usage": resp.Usage,
	}

	return result, nil
}

func reviewerSystemPrompt() string {
	return "You are a teaching assistant drafting feedback for a student submission. Respond with a JSON object containing " +
		"feedback (a short paragraph addressed to the student), strengths (array of strings), and issues (array of strings). " +
		"Be specific and constructive; never invent test results."
}

func buildReviewPrompt(input ReviewInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Assignment\n")
	builder.WriteString(input.AssignmentTitle)
	builder.WriteString("\n\n## Description\n")
	builder.WriteString(input.Description)
	builder.WriteString("\n\n## Kind\n")
	builder.WriteString(input.Kind)
	if input.Language != "" {
		builder.WriteString("\n\n## Language\n")
		builder.WriteString(input.Language)
	}
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.Content)
	if input.TestSummary != "" {
		builder.WriteString("\n\n## Auto-grade Results\n")
		builder.WriteString(input.TestSummary)
	}
	if input.Score != nil {
		builder.WriteString(fmt.Sprintf("\n\n## Current Score\n%.2f / %.2f", *input.Score, input.MaxScore))
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseReviewResponse(content string) (ReviewResult, error) {
	type payload struct {
		Feedback  string   `json:"feedback"`
		Strengths []string `json:"strengths"`
		Issues    []string `json:"issues"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return ReviewResult{}, fmt.Errorf("parse review json: %w", err)
	}

	return ReviewResult{
		Feedback:  data.Feedback,
		Strengths: data.Strengths,
		Issues:    data.Issues,
	}, nil
}
