package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"
)

// OllamaConfig configures the vision-model client.
type OllamaConfig struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	PoolSize    int
	PoolTimeout time.Duration
}

type ollamaResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient calls a local Ollama instance with an image and a prompt.
type OllamaClient struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func NewOllamaClient(config *OllamaConfig) *OllamaClient {
	return &OllamaClient{
		endpoint:    config.Endpoint,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// AnalyzeImage sends the image and prompt to the model and returns the
// generated text.
func (c *OllamaClient) AnalyzeImage(ctx context.Context, img image.Image, prompt string) (string, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	base64Img := base64.StdEncoding.EncodeToString(buf.Bytes())

	reqBody := map[string]interface{}{
		"model":       c.model,
		"prompt":      prompt,
		"images":      []string{base64Img},
		"stream":      false,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}
	return result.Response, nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// OllamaClientPool bounds concurrent VLM calls with a fixed set of
// pre-created clients. It satisfies VLM itself, so enrichment providers
// borrow a client per call without knowing about pooling.
type OllamaClientPool struct {
	clients chan *OllamaClient
	config  *OllamaConfig
}

func NewOllamaClientPool(config *OllamaConfig) *OllamaClientPool {
	pool := &OllamaClientPool{
		clients: make(chan *OllamaClient, config.PoolSize),
		config:  config,
	}
	for i := 0; i < config.PoolSize; i++ {
		pool.clients <- NewOllamaClient(config)
	}
	return pool
}

func (p *OllamaClientPool) Get(ctx context.Context) (*OllamaClient, error) {
	select {
	case client := <-p.clients:
		return client, nil
	case <-time.After(p.config.PoolTimeout):
		return nil, fmt.Errorf("timeout waiting for available client")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AnalyzeImage borrows a pooled client for the duration of one call.
func (p *OllamaClientPool) AnalyzeImage(ctx context.Context, img image.Image, prompt string) (string, error) {
	client, err := p.Get(ctx)
	if err != nil {
		return "", err
	}
	defer p.Put(client)
	return client.AnalyzeImage(ctx, img, prompt)
}

func (p *OllamaClientPool) Put(client *OllamaClient) {
	select {
	case p.clients <- client:
	default:
	}
}

func (p *OllamaClientPool) Close() error {
	close(p.clients)
	for client := range p.clients {
		client.Close()
	}
	return nil
}
