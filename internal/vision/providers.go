package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ollama/ollama/api"

	"github.com/yshsolar/catalog-pipeline/internal/llm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Agent id prefixes: "gemini" or "gemini:<tier>", and "ollama:<model>".
const (
	providerGemini = "gemini"
	providerOllama = "ollama"
)

// provider is implemented by every concrete agent: one model serves both extraction and the
// quality gate.
type provider interface {
	Agent
	QualityAgent
}

// Providers holds what concrete agents need to be built from their ids.
type Providers struct {
	LLM           llm.Client
	OllamaHost    string
	HTTPClient    *http.Client
	PromptVersion string
}

// Agent builds the extraction agent for id.
func (p Providers) Agent(id string) (Agent, error) {
	return p.build(id)
}

// QualityAgent builds the quality gate agent for id.
func (p Providers) QualityAgent(id string) (QualityAgent, error) {
	return p.build(id)
}

func (p Providers) build(id string) (provider, error) {
	name, arg, _ := strings.Cut(id, ":")
	version := p.PromptVersion
	if version == "" {
		version = "v1"
	}
	if _, err := BuildExtractionPrompt(version, types.CategoryOther); err != nil {
		return nil, fmt.Errorf("unknown prompt version %q: %w", version, err)
	}

	switch name {
	case providerGemini:
		if p.LLM == nil {
			return nil, fmt.Errorf("agent %s needs an LLM client (set GEMINI_API_KEY)", id)
		}
		tier := llm.TierStandard
		if arg != "" {
			tier = llm.ModelTier(arg)
		}
		return &GeminiAgent{id: id, client: p.LLM, tier: tier, version: version}, nil
	case providerOllama:
		if arg == "" {
			return nil, fmt.Errorf("agent %s names no model (use ollama:<model>)", id)
		}
		client, err := p.ollamaClient()
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", id, err)
		}
		return &OllamaAgent{id: id, model: arg, client: client, version: version}, nil
	default:
		return nil, fmt.Errorf("unknown vision agent %q", id)
	}
}

// ollamaClient connects to OllamaHost, or to OLLAMA_HOST when no host is configured.
func (p Providers) ollamaClient() (*api.Client, error) {
	if p.OllamaHost == "" {
		return api.ClientFromEnvironment()
	}
	base, err := url.Parse(strings.TrimRight(p.OllamaHost, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", p.OllamaHost)
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return api.NewClient(base, client), nil
}

// GeminiAgent sends images to a hosted Gemini model through llm.Client.
type GeminiAgent struct {
	id      string
	client  llm.Client
	tier    llm.ModelTier
	version string
}

// ID returns the agent id.
func (a *GeminiAgent) ID() string { return a.id }

// Analyze implements Agent.
func (a *GeminiAgent) Analyze(ctx context.Context, image []byte, category types.Category) (*ExtractionResult, error) {
	prompt, err := BuildExtractionPrompt(a.version, category)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.GenerateJSONWithImage(ctx, prompt, image, mimetype.Detect(image).String(), a.tier)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	return ParseExtraction(resp)
}

// Assess implements QualityAgent. The gate uses the cheapest tier.
func (a *GeminiAgent) Assess(ctx context.Context, image []byte, category types.Category) (*QualityAssessment, error) {
	prompt, err := BuildQualityPrompt(a.version, category)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.GenerateJSONWithImage(ctx, prompt, image, mimetype.Detect(image).String(), llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	return ParseQuality(resp)
}

// OllamaAgent sends images to a local Ollama server through its generate endpoint.
type OllamaAgent struct {
	id      string
	model   string
	client  *api.Client
	version string
}

// ID returns the agent id.
func (a *OllamaAgent) ID() string { return a.id }

// Analyze implements Agent.
func (a *OllamaAgent) Analyze(ctx context.Context, image []byte, category types.Category) (*ExtractionResult, error) {
	prompt, err := BuildExtractionPrompt(a.version, category)
	if err != nil {
		return nil, err
	}
	resp, err := a.generate(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	return ParseExtraction(resp)
}

// Assess implements QualityAgent.
func (a *OllamaAgent) Assess(ctx context.Context, image []byte, category types.Category) (*QualityAssessment, error) {
	prompt, err := BuildQualityPrompt(a.version, category)
	if err != nil {
		return nil, err
	}
	resp, err := a.generate(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	return ParseQuality(resp)
}

func (a *OllamaAgent) generate(ctx context.Context, prompt string, image []byte) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   a.model,
		Prompt:  prompt,
		Images:  []api.ImageData{image},
		Format:  json.RawMessage(`"json"`),
		Stream:  &stream,
		Options: map[string]any{"temperature": 0},
	}

	var sb strings.Builder
	err := a.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return sb.String(), nil
}
