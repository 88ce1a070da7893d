// Package search pushes finished documents to the full-text index. Query and
// facet construction live with the API service, not here; the pipeline only
// indexes and deletes.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/ocrcheck/pipeline/internal/models"
)

// indexMapping keeps dynamic mapping on but pins the fields queries rely on.
const indexMapping = `{
  "mappings": {
    "properties": {
      "original_filename": {"type": "text"},
      "content_type":      {"type": "keyword"},
      "ocr_text":          {"type": "text"},
      "summary":           {"type": "text"},
      "category":          {"type": "keyword"},
      "tags":              {"type": "keyword"},
      "key_points":        {"type": "text"},
      "document_date":     {"type": "keyword"},
      "page_count":        {"type": "integer"},
      "file_size":         {"type": "long"},
      "created_at":        {"type": "date"}
    }
  }
}`

// indexedDocument is the flattened search payload for one document.
type indexedDocument struct {
	OriginalFilename string           `json:"original_filename"`
	ContentType      string           `json:"content_type"`
	OCRText          string           `json:"ocr_text"`
	Summary          string           `json:"summary,omitempty"`
	Category         string           `json:"category,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	Entities         *models.Entities `json:"entities,omitempty"`
	KeyPoints        []string         `json:"key_points,omitempty"`
	DocumentDate     string           `json:"document_date,omitempty"`
	PageCount        int              `json:"page_count"`
	FileSize         int64            `json:"file_size"`
	CreatedAt        string           `json:"created_at,omitempty"`
}

// OpenSearchIndexer indexes completed documents into an OpenSearch index.
type OpenSearchIndexer struct {
	client *opensearch.Client
	index  string

	ensureOnce sync.Once
	ensureErr  error
}

// NewOpenSearchIndexer builds a client for the given endpoint and index name.
// The index itself is created lazily before the first write.
func NewOpenSearchIndexer(url, index string) (*OpenSearchIndexer, error) {
	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &OpenSearchIndexer{client: client, index: index}, nil
}

// Index writes the document's searchable fields under its id.
func (s *OpenSearchIndexer) Index(ctx context.Context, doc *models.Document) error {
	if err := s.ensureIndex(ctx); err != nil {
		return err
	}

	payload := indexedDocument{
		OriginalFilename: doc.OriginalFilename,
		ContentType:      doc.ContentType,
		OCRText:          doc.OCRText,
		Summary:          doc.Summary,
		Category:         doc.Category,
		Tags:             doc.Tags,
		Entities:         doc.Entities,
		KeyPoints:        doc.KeyPoints,
		DocumentDate:     doc.DocumentDate,
		PageCount:        doc.PageCount,
		FileSize:         doc.FileSize,
	}
	if !doc.CreatedAt.IsZero() {
		payload.CreatedAt = doc.CreatedAt.Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal index payload: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ID, res.String())
	}
	return nil
}

// Delete removes the document from the index. A missing document is fine:
// deletion must be idempotent.
func (s *OpenSearchIndexer) Delete(ctx context.Context, documentID string) error {
	req := opensearchapi.DeleteRequest{Index: s.index, DocumentID: documentID}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("delete document %s from index: %w", documentID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete document %s from index: %s", documentID, res.String())
	}
	return nil
}

func (s *OpenSearchIndexer) ensureIndex(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists := opensearchapi.IndicesExistsRequest{Index: []string{s.index}}
		res, err := exists.Do(ctx, s.client)
		if err != nil {
			s.ensureErr = fmt.Errorf("check index %s: %w", s.index, err)
			return
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			return
		}

		create := opensearchapi.IndicesCreateRequest{
			Index: s.index,
			Body:  bytes.NewReader([]byte(indexMapping)),
		}
		cres, err := create.Do(ctx, s.client)
		if err != nil {
			s.ensureErr = fmt.Errorf("create index %s: %w", s.index, err)
			return
		}
		defer cres.Body.Close()
		if cres.IsError() {
			s.ensureErr = fmt.Errorf("create index %s: %s", s.index, cres.String())
		}
	})
	return s.ensureErr
}
