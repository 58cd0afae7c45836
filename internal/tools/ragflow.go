package tools

import (
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

const (
	defaultTopK       = 5
	defaultRerankTopK = 10
)

// RAGFlow is a client for the RAGFlow retrieval API.
type RAGFlow struct {
	BaseURL   string
	APIKey    string
	DatasetID string
	Client    *http.Client
}

func NewRAGFlow(baseURL, apiKey, datasetID string) *RAGFlow {
	return &RAGFlow{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		DatasetID: datasetID,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type retrievalReq struct {
	Question     string   `json:"question"`
	DatasetIDs   []string `json:"dataset_ids"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
	EnableRerank bool     `json:"enable_rerank"`
	RerankTopK   int      `json:"rerank_top_k"`
}

type Chunk struct {
	DocumentKeyword string  `json:"document_keyword"`
	Similarity      float64 `json:"similarity"`
	Content         string  `json:"content"`
}

type retrievalResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Chunks []Chunk `json:"chunks"`
		Total  int     `json:"total"`
	} `json:"data"`
}

type Retrieval struct {
	Total   int     `json:"total"`
	Chunks  []Chunk `json:"chunks"`
	Context string  `json:"context"`
}

// Retrieve asks the dataset for the topK most relevant chunks, reranked.
func (r *RAGFlow) Retrieve(ctx context.Context, question string, topK int) (*Retrieval, error) {
	if r.DatasetID == "" {
		return nil, goerr.New("ragflow: dataset id is not configured")
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	b, err := json.Marshal(retrievalReq{
		Question:     question,
		DatasetIDs:   []string{r.DatasetID},
		Page:         1,
		PageSize:     topK,
		EnableRerank: true,
		RerankTopK:   defaultRerankTopK,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "ragflow: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/api/v1/retrieval", bytes.NewReader(b))
	if err != nil {
		return nil, goerr.Wrap(err, "ragflow: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "ragflow: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, goerr.New("ragflow: unexpected status",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", strings.TrimSpace(string(body))))
	}

	var decoded retrievalResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, goerr.Wrap(err, "ragflow: decode response")
	}
	if decoded.Code != 0 {
		return nil, goerr.New("ragflow: retrieval rejected",
			goerr.V("code", decoded.Code),
			goerr.V("message", decoded.Message))
	}

	return &Retrieval{
		Total:   decoded.Data.Total,
		Chunks:  decoded.Data.Chunks,
		Context: FormatChunks(decoded.Data.Chunks),
	}, nil
}

// FormatChunks renders chunks as numbered context blocks for the model.
func FormatChunks(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] doc=%s similarity=%.4f\n%s", i+1, c.DocumentKeyword, c.Similarity, c.Content)
	}
	return b.String()
}
