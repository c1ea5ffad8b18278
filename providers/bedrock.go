package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockProvider implements the Provider interface for AWS Bedrock,
// supporting Anthropic Claude and Amazon Titan text models via the Bedrock
// runtime InvokeModel API.
type BedrockProvider struct {
	Base
	client *bedrockruntime.Client
	region string
}

// NewBedrock creates a new AWS Bedrock provider. region defaults to
// us-east-1. When accessKey and secretKey are both set they override the
// default AWS credential chain.
func NewBedrock(region, accessKey, secretKey string) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		Base:   Base{name: "bedrock"},
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

// SupportedModels returns well-known Bedrock text model IDs.
func (p *BedrockProvider) SupportedModels() []string {
	return []string{
		"anthropic.claude-3-5-sonnet-20241022-v2:0",
		"anthropic.claude-3-haiku-20240307-v1:0",
		"amazon.titan-text-express-v1",
	}
}

// SupportsModel returns true for the Bedrock model ID namespaces handled here.
func (p *BedrockProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "anthropic.") || strings.HasPrefix(model, "amazon.titan")
}

// Generate dispatches to the model-family-specific InvokeModel body format.
func (p *BedrockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if strings.HasPrefix(req.Model, "anthropic.") {
		return p.generateAnthropic(ctx, req)
	}
	if strings.HasPrefix(req.Model, "amazon.titan") {
		return p.generateTitan(ctx, req)
	}
	return nil, fmt.Errorf("unsupported Bedrock model prefix for model: %s", req.Model)
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
}

type bedrockAnthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *BedrockProvider) generateAnthropic(ctx context.Context, req Request) (*Response, error) {
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &Error{Provider: p.name, Message: err.Error()}
	}

	var resp bedrockAnthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text:     text,
		Model:    req.Model,
		Provider: p.name,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

type bedrockTitanRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig struct {
		MaxTokenCount int      `json:"maxTokenCount,omitempty"`
		Temperature   *float64 `json:"temperature,omitempty"`
	} `json:"textGenerationConfig"`
}

type bedrockTitanResponse struct {
	InputTextTokenCount int `json:"inputTextTokenCount"`
	Results             []struct {
		TokenCount       int    `json:"tokenCount"`
		OutputText       string `json:"outputText"`
		CompletionReason string `json:"completionReason"`
	} `json:"results"`
}

func (p *BedrockProvider) generateTitan(ctx context.Context, req Request) (*Response, error) {
	titanReq := bedrockTitanRequest{InputText: req.Prompt}
	if req.MaxTokens != nil {
		titanReq.TextGenerationConfig.MaxTokenCount = *req.MaxTokens
	}
	titanReq.TextGenerationConfig.Temperature = req.Temperature

	body, err := json.Marshal(titanReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &Error{Provider: p.name, Message: err.Error()}
	}

	var resp bedrockTitanResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, &Error{Provider: p.name, Message: "no results in response"}
	}

	return &Response{
		Text:     resp.Results[0].OutputText,
		Model:    req.Model,
		Provider: p.name,
		Usage: Usage{
			PromptTokens:     resp.InputTextTokenCount,
			CompletionTokens: resp.Results[0].TokenCount,
			TotalTokens:      resp.InputTextTokenCount + resp.Results[0].TokenCount,
		},
	}, nil
}
