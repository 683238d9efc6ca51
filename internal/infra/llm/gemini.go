package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

const (
	defaultModelName       = "gemini-2.5-flash"
	defaultMaxOutputTokens = int32(512)
	defaultHistoryLimit    = 12
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("llm: empty response")

// GeminiConfig configures the Gemini extraction model.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	HistoryLimit    int
}

// GeminiModel extracts registration fields with Gemini structured output.
type GeminiModel struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiModel creates a client against the Gemini API.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModelName
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiModel{client: client, cfg: cfg}, nil
}

// Name identifies the model in logs and metrics.
func (g *GeminiModel) Name() string {
	return "gemini/" + g.cfg.Model
}

// Extract sends the turn with its bounded history and parses the JSON answer.
func (g *GeminiModel) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	contents := buildContents(req, g.cfg.HistoryLimit)
	temperature := g.cfg.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(req), genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    extractionSchema(),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return ParseExtraction(res.Text())
}

func buildContents(req domain.ExtractionRequest, historyLimit int) []*genai.Content {
	history := trimHistory(req.History, historyLimit)
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		role := genai.Role(genai.RoleUser)
		if entry.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

func extractionSchema() *genai.Schema {
	text := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"first_name":   text("Given name stated in the latest message, or empty."),
			"last_name":    text("Family name stated in the latest message, or empty."),
			"phone_number": text("Phone number exactly as written in the latest message, or empty."),
			"reply":        text("Reply to send to the farmer."),
			"abandon": {
				Type:        genai.TypeBoolean,
				Description: "True only when the farmer wants to cancel the registration.",
			},
		},
		Required:         []string{"reply"},
		PropertyOrdering: []string{"first_name", "last_name", "phone_number", "reply", "abandon"},
	}
}

type extractionPayload struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Reply       string `json:"reply"`
	Abandon     bool   `json:"abandon"`
}

// ParseExtraction decodes the model's JSON answer. Code fences are tolerated.
func ParseExtraction(text string) (*domain.ExtractionResult, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}

	result := &domain.ExtractionResult{
		Updates:    make(map[domain.Field]string, 3),
		Confidence: make(map[domain.Field]float64, 3),
		ReplyText:  strings.TrimSpace(payload.Reply),
		Abandon:    payload.Abandon,
	}
	for field, value := range map[domain.Field]string{
		domain.FieldFirstName:   payload.FirstName,
		domain.FieldLastName:    payload.LastName,
		domain.FieldPhoneNumber: payload.PhoneNumber,
	} {
		if v := strings.TrimSpace(value); v != "" {
			result.Updates[field] = v
			result.Confidence[field] = 0.9
		}
	}
	return result, nil
}

var _ port.LanguageModel = (*GeminiModel)(nil)
