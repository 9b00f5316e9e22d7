package search

import (
	"bytes"
	"context"
	"encoding/json"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/audit"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient indexes audit entries and serves audit lookups
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// Record implements audit.Sink by indexing the entry
func (c *ElasticClient) Record(ctx context.Context, entry audit.Entry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, c.config.Index),
		DocumentID: uuid.NewString(),
		Body:       bytes.NewReader(doc),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeError(res, "index")
	}

	log.Debug().Str("kind", string(entry.Kind)).Msg("audit entry indexed")
	return nil
}

// SearchBySubject returns the most recent audit entries for a member
func (c *ElasticClient) SearchBySubject(ctx context.Context, subjectID string, size int) ([]audit.Entry, error) {
	query := map[string]interface{}{
		"size": size,
		"sort": []interface{}{
			map[string]interface{}{"at": map[string]string{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"term": map[string]string{"subject_id": subjectID}},
					map[string]interface{}{"term": map[string]string{"actor_id": subjectID}},
				},
				"minimum_should_match": 1,
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{config.FormatIndex(c.config, c.config.Index)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, decodeError(res, "search")
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	entries := make([]audit.Entry, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		entries = append(entries, hit.Source)
	}
	return entries, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source audit.Entry `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func decodeError(res *esapi.Response, op string) error {
	var e map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %v", op, e)
}
