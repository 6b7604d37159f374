package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiClient owns a genai client and rotates through API keys when a call fails.
type geminiClient struct {
	apiKeys    []string
	currentKey int
	client     *genai.Client
	mu         sync.Mutex
}

func newGeminiClient(ctx context.Context, apiKeys []string) (*geminiClient, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}
	c := &geminiClient{apiKeys: apiKeys}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKeys[0]))
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

func (c *geminiClient) get() *genai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// rotate switches to the next key. stale is the client the caller saw fail;
// if another goroutine already rotated away from it, nothing is done.
func (c *geminiClient) rotate(ctx context.Context, stale *genai.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.apiKeys) < 2 || c.client != stale {
		return nil
	}
	c.currentKey = (c.currentKey + 1) % len(c.apiKeys)
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKeys[c.currentKey]))
	if err != nil {
		return err
	}
	old := c.client
	c.client = client
	return old.Close()
}

func (c *geminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}

type GeminiService struct {
	client    *geminiClient
	modelName string
}

func NewGeminiService(ctx context.Context, apiKeys []string, modelName string) (*GeminiService, error) {
	client, err := newGeminiClient(ctx, apiKeys)
	if err != nil {
		return nil, err
	}
	return &GeminiService{client: client, modelName: modelName}, nil
}

func (s *GeminiService) Complete(ctx context.Context, prompt string) (string, error) {
	client := s.client.get()
	resp, err := client.GenerativeModel(s.modelName).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		// Try rotating API key if there's an error
		if rerr := s.client.rotate(ctx, client); rerr != nil {
			return "", rerr
		}
		resp, err = s.client.get().GenerativeModel(s.modelName).GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}

	var content strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content.WriteString(string(text))
			}
		}
		// only the first candidate with content is the answer
		if content.Len() > 0 {
			break
		}
	}
	if content.Len() == 0 {
		return "", errors.New("empty response generated")
	}
	return content.String(), nil
}

func (s *GeminiService) Close() error {
	return s.client.Close()
}
