package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/chat")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "pong"}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3:latest")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	gt.NoError(t, err).Required()
	gt.Value(t, reply).Equal("pong")
	gt.Value(t, got.Model).Equal("llama3:latest")
	gt.Bool(t, got.Stream).False()
	gt.Array(t, got.Messages).Length(1)
}

func TestOllamaProvider_StreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range []string{"hel", "lo"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "m")
	reply, err := Collect(p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}))
	gt.NoError(t, err).Required()
	gt.Value(t, reply).Equal("hello")
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Chat(context.Background(), nil)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("model not found")
}

func TestOllamaProvider_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/tags")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"model":"qwen2:7b"}]}`))
	}))
	defer srv.Close()

	models, err := NewOllamaProvider(srv.URL, "").ListModels(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, models).Equal([]string{"llama3:latest", "qwen2:7b"})
}

func TestOpenRouterProvider_ChatAndStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.Header.Get("Authorization")).Equal("Bearer key")
		gt.Value(t, r.Header.Get("X-Title")).Equal("agent")
		var req openRouterChatReq
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Stream {
			fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"a"}}]}`)
			fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"b"}}]}`)
			fmt.Fprintln(w, `data: [DONE]`)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"full"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "openrouter/auto", "", "agent")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	gt.NoError(t, err).Required()
	gt.Value(t, reply).Equal("full")

	streamed, err := Collect(p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}))
	gt.NoError(t, err).Required()
	gt.Value(t, streamed).Equal("ab")
}

func TestOpenRouterProvider_RequiresKey(t *testing.T) {
	p := NewOpenRouterProvider("http://127.0.0.1:1", "", "m", "", "")
	_, err := p.Chat(context.Background(), nil)
	gt.Error(t, err)
}

func TestOpenRouterProvider_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/models")
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-oss:20b"},{"id":"llama3"}]}`))
	}))
	defer srv.Close()

	models, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").ListModels(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, models).Equal([]string{"gpt-oss:20b", "llama3"})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Ollama ", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider("", model), nil
	})

	p, err := reg.Get(context.Background(), "OLLAMA", "m1")
	gt.NoError(t, err).Required()
	gt.Value(t, p.(*OllamaProvider).Model).Equal("m1")
	gt.Value(t, reg.Names()).Equal([]string{"ollama"})

	_, err = reg.Get(context.Background(), "nope", "")
	gt.Error(t, err)
}
