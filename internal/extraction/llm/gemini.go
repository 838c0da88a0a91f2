package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/akolanti/MedExtract/internal/config"
	"google.golang.org/genai"
)

type geminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, httpClient *http.Client) (Provider, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = config.DefaultGeminiModel
	}
	logger.Info("Gemini client created", "model", model)
	return &geminiProvider{client: c, model: model}, nil
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	result, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			MaxOutputTokens:   config.LLMMaxTokens,
		},
	)
	if err != nil {
		return Response{}, err
	}

	var out Response
	if result.UsageMetadata != nil {
		out.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}
	out.Text = result.Text()
	return out, nil
}
