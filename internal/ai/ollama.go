package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// OllamaProvider talks to the native Ollama API (/api/chat, /api/tags).
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
	// StreamClient has no global timeout; the request context bounds it.
	StreamClient *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Model:        model,
		Client:       &http.Client{Timeout: 90 * time.Second},
		StreamClient: &http.Client{},
	}
}

type ollamaChatReq struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResp struct {
	Message wireMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type ollamaTagsResp struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func (p *OllamaProvider) newChatRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	b, err := json.Marshal(ollamaChatReq{Model: p.Model, Messages: toWire(messages), Stream: stream})
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", goerr.New("ollama: http client is nil")
	}
	req, err := p.newChatRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "ollama: request failed", goerr.V("model", p.Model))
	}
	defer resp.Body.Close()

	if err := checkStatus("ollama", resp); err != nil {
		return "", err
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", goerr.Wrap(err, "ollama: decode response")
	}
	if decoded.Error != "" {
		return "", goerr.New("ollama: "+decoded.Error, goerr.V("model", p.Model))
	}
	return decoded.Message.Content, nil
}

// StreamChat streams assistant content chunks from newline-delimited JSON.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
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
			errs <- goerr.Wrap(err, "ollama: stream request failed", goerr.V("model", p.Model))
			return
		}
		defer resp.Body.Close()

		if err := checkStatus("ollama", resp); err != nil {
			errs <- err
			return
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- goerr.Wrap(err, "ollama: decode stream line")
				return
			}
			if decoded.Error != "" {
				errs <- goerr.New("ollama: " + decoded.Error)
				return
			}
			if decoded.Message.Content != "" {
				select {
				case chunks <- decoded.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if decoded.Done {
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- goerr.Wrap(err, "ollama: read stream")
		}
	}()

	return chunks, errs
}

// ListModels returns the locally pulled model names.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: build request")
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: list models")
	}
	defer resp.Body.Close()

	if err := checkStatus("ollama", resp); err != nil {
		return nil, err
	}

	var decoded ollamaTagsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, goerr.Wrap(err, "ollama: decode tags")
	}
	out := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}
