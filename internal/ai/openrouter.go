package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// OpenRouterProvider speaks the OpenAI chat completions protocol. It serves
// OpenRouter and any OpenAI-compatible endpoint, including Ollama's /v1.
type OpenRouterProvider struct {
	BaseURL      string
	APIKey       string
	Model        string
	SiteURL      string
	AppName      string
	Client       *http.Client
	StreamClient *http.Client
}

type openRouterChatReq struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type apiError struct {
	Message string `json:"message"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type openRouterModelsResp struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Model:        model,
		SiteURL:      siteURL,
		AppName:      appName,
		Client:       &http.Client{Timeout: 90 * time.Second},
		StreamClient: &http.Client{},
	}
}

func (p *OpenRouterProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
}

func (p *OpenRouterProvider) newChatRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, goerr.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, goerr.New("openrouter: model is required")
	}

	b, err := json.Marshal(openRouterChatReq{Model: model, Messages: toWire(messages), Stream: stream})
	if err != nil {
		return nil, goerr.Wrap(err, "openrouter: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, goerr.Wrap(err, "openrouter: build request")
	}
	p.setHeaders(req)
	return req, nil
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", goerr.New("openrouter: http client is nil")
	}
	req, err := p.newChatRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "openrouter: request failed", goerr.V("model", p.Model))
	}
	defer resp.Body.Close()

	if err := checkStatus("openrouter", resp); err != nil {
		return "", err
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", goerr.Wrap(err, "openrouter: decode response")
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", goerr.New("openrouter: "+decoded.Error.Message, goerr.V("model", p.Model))
	}
	if len(decoded.Choices) == 0 {
		return "", goerr.New("openrouter: empty response", goerr.V("model", p.Model))
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks via SSE.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		client := p.StreamClient
		if client == nil {
			client = http.DefaultClient
		}
		req, err := p.newChatRequest(ctx, messages, true)
		if err != nil {
			errs <- err
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			errs <- goerr.Wrap(err, "openrouter: stream request failed", goerr.V("model", p.Model))
			return
		}
		defer resp.Body.Close()

		if err := checkStatus("openrouter", resp); err != nil {
			errs <- err
			return
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- goerr.Wrap(err, "openrouter: decode stream event")
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- goerr.New("openrouter: " + decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 || decoded.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case chunks <- decoded.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- goerr.Wrap(err, "openrouter: read stream")
		}
	}()

	return chunks, errs
}

// ListModels queries GET {base}/models.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/models", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "openrouter: build request")
	}
	p.setHeaders(req)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "openrouter: list models")
	}
	defer resp.Body.Close()

	if err := checkStatus("openrouter", resp); err != nil {
		return nil, err
	}

	var decoded openRouterModelsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, goerr.Wrap(err, "openrouter: decode models")
	}
	out := make([]string, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		if m.ID != "" {
			out = append(out, m.ID)
		}
	}
	return out, nil
}

func checkStatus(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return goerr.New(name+": "+msg, goerr.V("status", resp.StatusCode))
}
