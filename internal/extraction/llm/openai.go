package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a chat completions provider on httpClient. SDK retries are off,
// the Extractor owns retry and backoff.
func NewOpenAIProvider(apiKey, baseURL, model string, httpClient *http.Client) Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	return &openaiProvider{client: openai.NewClient(opts...), model: model}
}

func (p *openaiProvider) Name() string {
	return "openai"
}

func (p *openaiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
			Detail: "high",
		}))
	}
	parts = append(parts, openai.TextContentPart(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(parts),
		},
		MaxTokens: openai.Int(config.LLMMaxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			logger.WithTrace(ctx).Error("openai http error", "status", apiErr.StatusCode)
		}
		return Response{}, err
	}

	out := Response{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return out, errors.New("openai returned no choices")
	}
	out.Text = resp.Choices[0].Message.Content
	return out, nil
}
