package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/NiruddeshJatra/Bhara/internal/events"
	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
)

const defaultIndex = "products"

// Document is the indexed form of a product
type Document struct {
	ID              string   `json:"id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	ProductType     string   `json:"product_type"`
	Location        string   `json:"location"`
	Status          string   `json:"status"`
	MinDailyPrice   *int64   `json:"min_daily_price,omitempty"`
	AverageRating   *float64 `json:"average_rating,omitempty"`
	ViewsCount      int64    `json:"views_count"`
	RentalCount     int64    `json:"rental_count"`
	ImageURL        string   `json:"image_url,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	SecurityDeposit *int64   `json:"security_deposit,omitempty"`
}

// NewDocument flattens p into its search document
func NewDocument(p *models.Product) Document {
	doc := Document{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		Title:           p.Title,
		Description:     PlainText(p.Description),
		Category:        p.Category,
		ProductType:     p.ProductType,
		Location:        p.Location,
		Status:          string(p.Status),
		MinDailyPrice:   p.MinDailyPrice(),
		AverageRating:   p.AverageRating,
		ViewsCount:      p.ViewsCount,
		RentalCount:     p.RentalCount,
		CreatedAt:       p.CreatedAt.Unix(),
		SecurityDeposit: p.SecurityDeposit,
	}
	if len(p.Images) > 0 {
		doc.ImageURL = p.Images[0].ImageURL
	}
	return doc
}

// ProductLoader is the read access the index needs to rebuild documents
type ProductLoader interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
	loader ProductLoader
}

func NewSearchClient(host, apiKey string, loader ProductLoader) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	})

	return &SearchClient{
		client: client,
		index:  defaultIndex,
		loader: loader,
	}
}

// InitIndex creates the products index and its attribute settings
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !isAlreadyExists(err) {
		return err
	}

	idx := s.client.Index(s.index)

	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"title",
		"description",
		"category",
		"product_type",
		"location",
	}); err != nil {
		return err
	}

	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"id",
		"owner_id",
		"status",
		"category",
		"product_type",
		"location",
		"min_daily_price",
		"average_rating",
	}); err != nil {
		return err
	}

	_, err = idx.UpdateSortableAttributes(&[]string{
		"created_at",
		"min_daily_price",
		"average_rating",
		"views_count",
	})
	return err
}

func isAlreadyExists(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}

// IndexProduct adds or replaces the document of one product
func (s *SearchClient) IndexProduct(p *models.Product) error {
	_, err := s.client.Index(s.index).AddDocuments([]Document{NewDocument(p)}, "id")
	return err
}

// IndexProducts adds or replaces documents in one task
func (s *SearchClient) IndexProducts(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(products))
	for i := range products {
		docs = append(docs, NewDocument(&products[i]))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	return err
}

// DeleteProduct removes a product document. Missing documents are not an error.
func (s *SearchClient) DeleteProduct(id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// DeleteAll empties the index before a full rebuild
func (s *SearchClient) DeleteAll() error {
	_, err := s.client.Index(s.index).DeleteAllDocuments()
	return err
}

// HandleProductEvent keeps the index in step with product changes
func (s *SearchClient) HandleProductEvent(ctx context.Context, msg events.ProductMessage) error {
	switch msg.Action {
	case events.ActionDelete:
		return s.DeleteProduct(msg.ProductID)
	case events.ActionCreate, events.ActionUpdate:
		p, err := s.loader.GetProduct(ctx, msg.ProductID)
		if errors.Is(err, product.ErrNotFound) {
			log.Printf("[Search] Product %s is gone, removing document", msg.ProductID)
			return s.DeleteProduct(msg.ProductID)
		}
		if err != nil {
			return err
		}
		return s.IndexProduct(p)
	default:
		return fmt.Errorf("unknown product action %q", msg.Action)
	}
}

// SearchRequest represents advanced search parameters
type SearchRequest struct {
	Query        string
	Limit        int64
	Offset       int64
	Filter       []string
	Sort         []string
	FacetsFilter []string
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []Document             `json:"hits"`
	TotalHits      int64                  `json:"total_hits"`
	Facets         map[string]interface{} `json:"facets,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// AdvancedSearch performs a search with raw filters, sorting and facets
func (s *SearchClient) AdvancedSearch(req SearchRequest) (*SearchResult, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if len(req.Filter) > 0 {
		searchReq.Filter = strings.Join(req.Filter, " AND ")
	}
	if len(req.Sort) > 0 {
		searchReq.Sort = req.Sort
	}
	if len(req.FacetsFilter) > 0 {
		searchReq.Facets = req.FacetsFilter
	}

	searchRes, err := s.client.Index(s.index).Search(req.Query, searchReq)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, documentFromHit(hitMap))
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           docs,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// GetFacets retrieves the facet distribution for the given fields
func (s *SearchClient) GetFacets(facets []string) (map[string]interface{}, error) {
	searchRes, err := s.client.Index(s.index).Search("", &meilisearch.SearchRequest{
		Limit:  0,
		Facets: facets,
	})
	if err != nil {
		return nil, err
	}

	if facetMap, ok := searchRes.FacetDistribution.(map[string]interface{}); ok {
		return facetMap, nil
	}
	return map[string]interface{}{}, nil
}

// documentFromHit converts a raw hit into a Document
func documentFromHit(hit map[string]interface{}) Document {
	doc := Document{
		ID:          getString(hit, "id"),
		OwnerID:     getString(hit, "owner_id"),
		Title:       getString(hit, "title"),
		Description: getString(hit, "description"),
		Category:    getString(hit, "category"),
		ProductType: getString(hit, "product_type"),
		Location:    getString(hit, "location"),
		Status:      getString(hit, "status"),
		ImageURL:    getString(hit, "image_url"),
	}

	// JSON numbers arrive as float64
	if v, ok := hit["min_daily_price"].(float64); ok {
		price := int64(v)
		doc.MinDailyPrice = &price
	}
	if v, ok := hit["security_deposit"].(float64); ok {
		deposit := int64(v)
		doc.SecurityDeposit = &deposit
	}
	if v, ok := hit["average_rating"].(float64); ok {
		doc.AverageRating = &v
	}
	if v, ok := hit["views_count"].(float64); ok {
		doc.ViewsCount = int64(v)
	}
	if v, ok := hit["rental_count"].(float64); ok {
		doc.RentalCount = int64(v)
	}
	if v, ok := hit["created_at"].(float64); ok {
		doc.CreatedAt = int64(v)
	}
	return doc
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
