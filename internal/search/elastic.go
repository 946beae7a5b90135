// Package search indexe et recherche les produits dans Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"boutique_back_end/internal/models"
)

type Elastic struct {
	client *elasticsearch.Client
	index  string
}

func NewElastic(client *elasticsearch.Client, index string) *Elastic {
	if index == "" {
		index = "products"
	}
	return &Elastic{client: client, index: index}
}

type document struct {
	ID          string `json:"id"`
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Available   bool   `json:"available"`
}

// EnsureIndex crée l'index s'il n'existe pas encore.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("vérification index %s: %w", e.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := `{"mappings":{"properties":{
		"name":{"type":"text"},"description":{"type":"text"},
		"category_id":{"type":"keyword"},"price":{"type":"keyword"},"available":{"type":"boolean"}}}}`
	res, err = esapi.IndicesCreateRequest{Index: e.index, Body: strings.NewReader(mapping)}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("création index %s: %w", e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("création index %s: %s", e.index, res.String())
	}
	return nil
}

// Index indexe (ou réindexe) un produit.
func (e *Elastic) Index(ctx context.Context, p *models.Product) error {
	data, err := json.Marshal(document{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Available:   p.Available,
	})
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: p.ID,
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("indexation %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("indexation %s: %s", p.ID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search retourne les identifiants des produits disponibles correspondant à la requête, par pertinence.
func (e *Elastic) Search(ctx context.Context, query string, limit int) ([]string, error) {
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"name^2", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{"term": map[string]any{"available": true}},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encodage requête: %w", err)
	}

	res, err := esapi.SearchRequest{Index: []string{e.index}, Body: &buf}.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("requête Elastic: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("requête Elastic: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("décodage réponse Elastic: %w", err)
	}
	ids := make([]string, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
