package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "dsa-agent/errors"

	"go.uber.org/zap"
)

// Reranker reorders candidates by relevance to query and keeps at most topN.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document, topN int) ([]Document, error)
}

type cohereRerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// CohereReranker calls the Cohere rerank endpoint (cross-encoder relevance).
type CohereReranker struct {
	host       string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCohereReranker(host, apiKey, model string, timeout time.Duration, logger *zap.Logger) *CohereReranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CohereReranker{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (r *CohereReranker) Rerank(ctx context.Context, query string, docs []Document, topN int) ([]Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	body, err := json.Marshal(cohereRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: texts,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRerank, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRerank, fmt.Errorf("read rerank response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Tag(apperrors.ErrRerank, fmt.Errorf("rerank status %s: %s", resp.Status, string(respBody)))
	}

	var rr cohereRerankResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return nil, apperrors.Tag(apperrors.ErrRerank, fmt.Errorf("decode rerank response: %w", err))
	}

	out := make([]Document, 0, len(rr.Results))
	for _, res := range rr.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			r.logger.Warn("Rerank result index out of range", zap.Int("index", res.Index))
			continue
		}
		d := docs[res.Index]
		d.Metadata = cloneStringMap(d.Metadata)
		d.Score = res.RelevanceScore
		out = append(out, d)
		if len(out) == topN {
			break
		}
	}
	return out, nil
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// LexicalReranker blends the embedding similarity with a BM25 score computed over the
// candidate set. It needs no external service and is used when no rerank API is configured.
type LexicalReranker struct {
	SemanticWeight float64
	K1             float64
	B              float64
}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{SemanticWeight: 0.7, K1: 1.2, B: 0.75}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, docs []Document, topN int) ([]Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	queryTerms := uniqueTerms(tokenize(query))
	docTerms := make([][]string, len(docs))
	df := make(map[string]int)
	totalLen := 0
	for i, d := range docs {
		docTerms[i] = tokenize(d.Text)
		totalLen += len(docTerms[i])
		for _, t := range uniqueTerms(docTerms[i]) {
			df[t]++
		}
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		avgLen = 1
	}

	bm25 := make([]float64, len(docs))
	maxBM, maxSem := 0.0, 0.0
	n := float64(len(docs))
	for i, terms := range docTerms {
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		score := 0.0
		for _, q := range queryTerms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[q])+0.5)/(float64(df[q])+0.5))
			score += idf * (f * (r.K1 + 1)) / (f + r.K1*(1-r.B+r.B*float64(len(terms))/avgLen))
		}
		bm25[i] = score
		maxBM = math.Max(maxBM, score)
		maxSem = math.Max(maxSem, docs[i].Score)
	}

	out := make([]Document, len(docs))
	for i, d := range docs {
		combined := 0.0
		if maxSem > 0 {
			combined += r.SemanticWeight * (d.Score / maxSem)
		}
		if maxBM > 0 {
			combined += (1 - r.SemanticWeight) * (bm25[i] / maxBM)
		}
		d.Metadata = cloneStringMap(d.Metadata)
		d.Score = combined
		out[i] = d
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out[:topN], nil
}

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
