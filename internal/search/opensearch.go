// Package search indexes articles into OpenSearch and serves full-text
// queries over them.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"threatfeed/internal/model"
)

const mapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"title_es": {"type": "text", "analyzer": "spanish"},
			"body_es": {"type": "text", "analyzer": "spanish"},
			"summary_es": {"type": "text", "analyzer": "spanish"},
			"tags": {"type": "keyword"},
			"iocs": {"type": "keyword"},
			"published_at": {"type": "date"},
			"source_name": {"type": "keyword"},
			"source_type": {"type": "keyword"},
			"translated": {"type": "boolean"},
			"has_iocs": {"type": "boolean"}
		}
	}
}`

// Client wraps the OpenSearch connection for one index.
type Client struct {
	os    *opensearch.Client
	index string
}

type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

func NewClient(cfg Config) (*Client, error) {
	osc, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "articles"
	}
	return &Client{os: osc, index: index}, nil
}

// EnsureIndex creates the article index with its mapping if missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{c.index}}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	createRes, err := opensearchapi.IndicesCreateRequest{
		Index: c.index,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("create index: %s", createRes.String())
	}
	return nil
}

// IndexArticle upserts one document by id.
func (c *Client) IndexArticle(ctx context.Context, doc model.ArticleDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := opensearchapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("index article %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index article %s: %s", doc.ID, res.String())
	}
	return nil
}

// Filters narrows a search beyond the free-text query.
type Filters struct {
	From       *time.Time
	To         *time.Time
	SourceType string
	HasIOCs    *bool
}

// Hit is one search result.
type Hit struct {
	model.ArticleDocument
	Score float64
}

// Search runs a full-text query boosted towards titles, newest first.
func (c *Client) Search(ctx context.Context, query string, filters Filters, size int) ([]Hit, int, error) {
	if size <= 0 {
		size = 100
	}

	var must []map[string]any
	if query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title_es^2", "summary_es^1.5", "body_es"},
				"type":   "best_fields",
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	var filter []map[string]any
	if filters.From != nil || filters.To != nil {
		rng := map[string]any{}
		if filters.From != nil {
			rng["gte"] = filters.From.Format(time.RFC3339)
		}
		if filters.To != nil {
			rng["lte"] = filters.To.Format(time.RFC3339)
		}
		filter = append(filter, map[string]any{"range": map[string]any{"published_at": rng}})
	}
	if filters.SourceType != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"source_type": filters.SourceType}})
	}
	if filters.HasIOCs != nil {
		filter = append(filter, map[string]any{"term": map[string]any{"has_iocs": *filters.HasIOCs}})
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": must, "filter": filter}},
		"sort":  []map[string]any{{"published_at": map[string]any{"order": "desc"}}},
		"size":  size,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal query: %w", err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.os)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("search: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64               `json:"_score"`
				Source model.ArticleDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{ArticleDocument: h.Source, Score: h.Score})
	}
	return hits, parsed.Hits.Total.Value, nil
}
