package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// defaultBedrockModels are well-known Bedrock model IDs. The runtime API has
// no listing call, so the catalog is configured.
var defaultBedrockModels = []string{
	"anthropic.claude-3-5-sonnet-20241022-v2:0",
	"anthropic.claude-3-5-haiku-20241022-v1:0",
	"anthropic.claude-3-haiku-20240307-v1:0",
	"amazon.titan-text-express-v1",
	"amazon.titan-text-premier-v1:0",
	"meta.llama3-1-70b-instruct-v1:0",
	"meta.llama3-1-8b-instruct-v1:0",
}

// BedrockProvider reports a configured AWS Bedrock catalog and probes the
// runtime with a one-token Converse call.
type BedrockProvider struct {
	Base
	client     *bedrockruntime.Client
	region     string
	models     []string
	probeModel string
}

// AWSCredentials are static credentials. When nil the default AWS
// credential chain is used.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewBedrock creates a new AWS Bedrock provider. region defaults to us-east-1.
func NewBedrock(name, region string, creds *AWSCredentials, models []string, probeModel string) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds != nil && creds.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if name == "" {
		name = "bedrock"
	}
	if len(models) == 0 {
		models = defaultBedrockModels
	}
	if probeModel == "" {
		probeModel = models[0]
	}
	return &BedrockProvider{
		Base:       Base{name: name, baseURL: fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)},
		client:     bedrockruntime.NewFromConfig(cfg),
		region:     region,
		models:     models,
		probeModel: probeModel,
	}, nil
}

// FetchCatalog returns the configured model list.
func (p *BedrockProvider) FetchCatalog(_ context.Context) ([]ModelInfo, error) {
	models := ModelsFromList(p.name, "bedrock", p.baseURL, p.models)
	for i := range models {
		models[i].Parameters = map[string]string{"region": p.region}
	}
	sortModels(models)
	return models, nil
}

// Probe sends a minimal Converse request.
func (p *BedrockProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		_, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
			ModelId: aws.String(p.probeModel),
			Messages: []types.Message{{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "ping"}},
			}},
			InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(1)},
		})
		return p.classify(err)
	})
}

func (p *BedrockProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return &RateLimitError{Provider: p.name, Err: err}
	}
	var unavailable *types.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return &StatusError{Provider: p.name, StatusCode: 503, Body: unavailable.ErrorMessage()}
	}
	return err
}
