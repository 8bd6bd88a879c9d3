package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

const DefaultGeminiModel = "models/gemini-1.5-flash"

// Generator returns raw model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator opens a Gemini client configured for JSON output.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// GeminiExtractor asks a language model for the intent fields. Its output is
// validated like any other client input.
type GeminiExtractor struct {
	gen     Generator
	shop    *shop.Shop
	timeout time.Duration
}

func NewGeminiExtractor(gen Generator, s *shop.Shop) *GeminiExtractor {
	return &GeminiExtractor{gen: gen, shop: s, timeout: 10 * time.Second}
}

func (g *GeminiExtractor) Extract(ctx context.Context, msg Message) (engine.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.gen.Generate(ctx, g.prompt(msg))
	if err != nil {
		return engine.Intent{}, err
	}
	var f Fields
	if err := json.Unmarshal([]byte(stripFence(raw)), &f); err != nil {
		return engine.Intent{}, fmt.Errorf("%w: model output: %v", ErrNotUnderstood, err)
	}
	return f.ToIntent(msg, g.shop.Location)
}

func (g *GeminiExtractor) prompt(msg Message) string {
	now := msg.ReceivedAt.In(g.shop.Location)
	var sb strings.Builder
	fmt.Fprintf(&sb, "You extract appointment requests for the barber shop %q.\n", g.shop.Name)
	fmt.Fprintf(&sb, "Current local time: %s (%s).\n", now.Format("Monday 2006-01-02 15:04"), g.shop.Location)
	fmt.Fprintf(&sb, "Services: %s.\n", strings.Join(g.shop.ServiceNames(), ", "))
	sb.WriteString("Reply with one JSON object and nothing else, using these string fields:\n")
	sb.WriteString(`intent (one of "book", "cancel", "reschedule", "check_availability"), `)
	sb.WriteString(`service, date (YYYY-MM-DD), time (HH:MM, 24h), range_start and range_end (YYYY-MM-DDTHH:MM), `)
	sb.WriteString("appointment_id, customer_name, recipient, reason.\n")
	sb.WriteString("Leave a field empty when the message does not say it. Resolve relative dates against the current local time.\n")
	sb.WriteString("Message:\n")
	sb.WriteString(msg.Text)
	return sb.String()
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
