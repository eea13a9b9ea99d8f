package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/datasetu-labs/metaforge/internal/core"
)

// Flash models come first: they have higher rate limits and are cheap enough
// to burn retries on before escalating to pro-tier models.
var preferredOrder = []string{
	"gemini-1.5-flash",
	"gemini-1.5-flash-001",
	"gemini-1.5-pro",
	"gemini-1.0-pro",
	"gemini-1.5-flash-8b",
	"gemini-pro",
}

// Specialized models that cannot serve plain text generation.
var excludedKeywords = []string{
	"vision", "embedding", "tts", "audio", "robotics", "computer-use",
	"image-generation", "imagen", "medlm",
}

type GeminiClient struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiClient(ctx context.Context, apiKey, defaultModel string) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	return &GeminiClient{client: cl, defaultModel: defaultModel}, nil
}

func (g *GeminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// ListCandidates returns available model IDs ordered by preference. A listing
// failure is not fatal; the configured default model is the fallback.
func (g *GeminiClient) ListCandidates(ctx context.Context) ([]string, error) {
	var available []string
	it := g.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return []string{g.defaultModel}, nil
		}
		available = append(available, strings.TrimPrefix(m.Name, "models/"))
	}

	seen := make(map[string]bool)
	var candidates []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}

	for _, pref := range preferredOrder {
		for _, name := range available {
			if name == pref {
				add(name)
			}
		}
	}
	for _, name := range available {
		if !strings.Contains(name, "gemini") {
			continue
		}
		excluded := false
		for _, kw := range excludedKeywords {
			if strings.Contains(name, kw) {
				excluded = true
				break
			}
		}
		if !excluded {
			add(name)
		}
	}

	if len(candidates) == 0 {
		return []string{g.defaultModel}, nil
	}
	return candidates, nil
}

// Generate runs one generation attempt. Failures come back as *core.GenError
// so the synthesizer can decide between backoff and abandoning the model.
// An empty return with nil error means the response was blocked or empty.
func (g *GeminiClient) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	m := g.client.GenerativeModel(modelID)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &core.GenError{Kind: classify(err), Model: modelID, Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func classify(err error) core.GenErrorKind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429:
			return core.GenRateLimited
		case 503:
			return core.GenOverloaded
		case 400:
			return core.GenInvalidInput
		}
	}
	s := fmt.Sprintf("%v", err)
	switch {
	case strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED"):
		return core.GenRateLimited
	case strings.Contains(s, "503") || strings.Contains(s, "UNAVAILABLE"):
		return core.GenOverloaded
	case strings.Contains(s, "400") || strings.Contains(s, "INVALID_ARGUMENT"):
		return core.GenInvalidInput
	default:
		return core.GenUnknown
	}
}

var _ core.GenerationClient = (*GeminiClient)(nil)
