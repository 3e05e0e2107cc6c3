package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"marketlens/backend/internal/retrieval"
	"marketlens/backend/internal/vector"
)

// chunkNamespace seeds deterministic object ids so a replayed insert for the
// same scope and chunk index overwrites instead of duplicating.
var chunkNamespace = uuid.MustParse("6f1c3e2a-8a4b-4c1e-9d7a-2b5f0e9c4a11")

type Store struct {
	client    *weaviate.Client
	className string
}

func NewStore(client *weaviate.Client, className string) *Store {
	return &Store{client: client, className: className}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateSchema(s.client, s.className))
}

// InsertChunks writes all chunks in one batch request.
func (s *Store) InsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(chunks))
	for _, c := range chunks {
		objects = append(objects, &models.Object{
			Class:      s.className,
			ID:         strfmt.UUID(objectID(c).String()),
			Properties: properties(c),
			Vector:     models.C11yVector(c.Vector),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	var failures []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				failures = append(failures, e.Message)
			}
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("batch insert: %d object errors: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// DeleteScope removes every object in scope. It refuses scopes that would
// match the whole collection.
func (s *Store) DeleteScope(ctx context.Context, scope vector.Scope) error {
	where, err := scopeFilter(scope)
	if err != nil {
		return err
	}
	_, err = s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	return err
}

var searchFields = []graphql.Field{
	{Name: "content"},
	{Name: "kind"},
	{Name: "title"},
	{Name: "productId"},
	{Name: "productName"},
	{Name: "source"},
	{Name: "productSource"},
	{Name: "resourceId"},
	{Name: "chunkIndex"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
}

// Search returns the nearest chunks by cosine distance, restricted to the
// given products.
func (s *Store) Search(ctx context.Context, vec []float32, limit int, productIDs []string) ([]retrieval.SearchResult, error) {
	if len(productIDs) == 0 {
		return nil, retrieval.ErrMissingProduct
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithWhere(anyOf("productId", productIDs)).
		WithLimit(limit).
		WithFields(searchFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var results []retrieval.SearchResult
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[s.className].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		r := retrieval.SearchResult{
			Content:       str(props, "content"),
			Kind:          str(props, "kind"),
			Title:         str(props, "title"),
			ProductID:     str(props, "productId"),
			ProductName:   str(props, "productName"),
			Source:        str(props, "source"),
			ProductSource: str(props, "productSource"),
			ResourceID:    str(props, "resourceId"),
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			r.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				r.Score = float32(1 - d)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// CountChunks counts objects in the collection.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[s.className].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func scopeFilter(scope vector.Scope) (*filters.WhereBuilder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	switch {
	case scope.ResourceID != "":
		return equal("resourceId", scope.ResourceID), nil
	case scope.Source != "":
		return filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				equal("source", scope.Source),
				equal("productSource", scope.ProductSource),
			}), nil
	default:
		return anyOf("productSource", scope.ProductSources), nil
	}
}

func equal(path, value string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{path}).
		WithOperator(filters.Equal).
		WithValueString(value)
}

func anyOf(path string, values []string) *filters.WhereBuilder {
	if len(values) == 1 {
		return equal(path, values[0])
	}
	operands := make([]*filters.WhereBuilder, len(values))
	for i, v := range values {
		operands[i] = equal(path, v)
	}
	return filters.Where().WithOperator(filters.Or).WithOperands(operands)
}

func objectID(c vector.Chunk) uuid.UUID {
	key := c.Kind + "|" + c.ResourceID + "|" + c.Source + "|" + c.ProductSource + "|" + fmt.Sprint(c.ChunkIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(key))
}

func properties(c vector.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"content":       c.Content,
		"kind":          c.Kind,
		"title":         c.Title,
		"productId":     c.ProductID,
		"productName":   c.ProductName,
		"source":        c.Source,
		"productSource": c.ProductSource,
		"resourceId":    c.ResourceID,
		"chunkIndex":    c.ChunkIndex,
	}
}

func str(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}
