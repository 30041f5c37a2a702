package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"medrag/internal/synthesis"
)

const DefaultGenerationModel = "gemini-2.5-flash-lite"

// relaxedSafety stops the model from refusing on clinical vocabulary alone.
var relaxedSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
}

// Generator adapts the Gemini content API to synthesis.Generator.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = DefaultGenerationModel
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Generate(ctx context.Context, req synthesis.Request) (synthesis.Result, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(req.Temperature)
	model.SetMaxOutputTokens(req.MaxTokens)
	model.SafetySettings = relaxedSafety

	slog.DebugContext(ctx, "generating answer", "model", g.model, "prompt_len", len(req.Prompt))
	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return synthesis.Result{}, err
	}
	return extractText(resp), nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

// extractText returns the text of the first candidate that carries any,
// so callers never inspect the response shape themselves.
func extractText(resp *genai.GenerateContentResponse) synthesis.Result {
	if resp == nil {
		return synthesis.Result{Reason: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return synthesis.Result{Reason: "prompt blocked: " + fb.BlockReason.String()}
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return synthesis.Result{OK: true, Text: text}
		}
	}

	reason := "no text in response"
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		reason = "finish reason: " + resp.Candidates[0].FinishReason.String()
	}
	return synthesis.Result{Reason: reason}
}
