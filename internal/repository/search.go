// internal/repository/search.go
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
)

const decisionIndex = "loan-decisions"

// DecisionIndexer mirrors decision results into Elasticsearch so the API
// can serve filtered listings without hitting Postgres.
type DecisionIndexer struct {
	client *elasticsearch.Client
	logger logger.Logger
}

func NewDecisionIndexer(client *elasticsearch.Client, log logger.Logger) *DecisionIndexer {
	return &DecisionIndexer{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "decision_indexer"}),
	}
}

const decisionIndexMapping = `{
	"mappings": {
		"properties": {
			"application_id":  {"type": "keyword"},
			"decision":        {"type": "keyword"},
			"credit_score":    {"type": "integer"},
			"credit_tier":     {"type": "keyword"},
			"risk_score":      {"type": "integer"},
			"risk_level":      {"type": "keyword"},
			"dti_ratio":       {"type": "float"},
			"approved_amount": {"type": "float"},
			"interest_rate":   {"type": "float"},
			"completed_at":    {"type": "date"}
		}
	}
}`

// EnsureIndex creates the decision index with its mapping when it does
// not exist. Term filters in SearchDecisions depend on the keyword
// fields declared here.
func (i *DecisionIndexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.client.Indices.Exists(
		[]string{decisionIndex},
		i.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", decisionIndex, err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == 200 {
		return nil
	}

	res, err := i.client.Indices.Create(
		decisionIndex,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(bytes.NewReader([]byte(decisionIndexMapping))),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", decisionIndex, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index %s: %s", decisionIndex, res.Status())
	}

	i.logger.Info("decision index created", map[string]interface{}{"index": decisionIndex})
	return nil
}

// DecisionDocument is the flattened shape stored in the index.
type DecisionDocument struct {
	ApplicationID  string    `json:"application_id"`
	Decision       string    `json:"decision"`
	CreditScore    int       `json:"credit_score"`
	CreditTier     string    `json:"credit_tier"`
	RiskScore      int       `json:"risk_score"`
	RiskLevel      string    `json:"risk_level"`
	DTIRatio       float64   `json:"dti_ratio"`
	ApprovedAmount float64   `json:"approved_amount"`
	InterestRate   float64   `json:"interest_rate"`
	CompletedAt    time.Time `json:"completed_at"`
}

// IndexDecision upserts the decision document keyed by application ID.
func (i *DecisionIndexer) IndexDecision(ctx context.Context, result *models.DecisionResult) error {
	doc := DecisionDocument{
		ApplicationID:  result.ApplicationID,
		Decision:       string(result.FinalDecision),
		CreditScore:    result.CreditScore,
		CreditTier:     string(result.CreditTier),
		RiskScore:      result.RiskScore,
		RiskLevel:      string(result.RiskLevel),
		DTIRatio:       result.DTIRatio,
		ApprovedAmount: result.ApprovedAmount,
		InterestRate:   result.InterestRate,
		CompletedAt:    result.CompletedAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.NewIndexingFailedError(fmt.Errorf("marshal document: %w", err))
	}

	req := esapi.IndexRequest{
		Index:      decisionIndex,
		DocumentID: result.ApplicationID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return errors.NewIndexingFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewIndexingFailedError(fmt.Errorf("index response: %s", res.Status()))
	}

	i.logger.Debug("decision indexed", map[string]interface{}{
		"applicationId": result.ApplicationID,
	})
	return nil
}

// SearchFilter narrows a decision listing. Zero values mean "no filter".
type SearchFilter struct {
	Decision  string
	RiskLevel string
	Limit     int
}

// SearchResult is one matching decision plus listing metadata.
type SearchResult struct {
	Decisions []DecisionDocument `json:"decisions"`
	TotalHits int                `json:"total_hits"`
}

// SearchDecisions lists decision documents matching the filter, newest first.
func (i *DecisionIndexer) SearchDecisions(ctx context.Context, filter SearchFilter) (*SearchResult, error) {
	size := filter.Limit
	if size <= 0 || size > 100 {
		size = 20
	}

	filterClauses := []interface{}{}
	if filter.Decision != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"decision": filter.Decision},
		})
	}
	if filter.RiskLevel != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"risk_level": filter.RiskLevel},
		})
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filterClauses,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"completed_at": map[string]interface{}{"order": "desc"}},
		},
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(fmt.Errorf("marshal query: %w", err))
	}

	from := 0
	req := esapi.SearchRequest{
		Index: []string{decisionIndex},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchQueryFailedError(fmt.Errorf("search response: %s", res.Status()))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source DecisionDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError(fmt.Errorf("decode search response: %w", err))
	}

	result := &SearchResult{
		Decisions: make([]DecisionDocument, 0, len(parsed.Hits.Hits)),
		TotalHits: parsed.Hits.Total.Value,
	}
	for _, hit := range parsed.Hits.Hits {
		result.Decisions = append(result.Decisions, hit.Source)
	}
	return result, nil
}
