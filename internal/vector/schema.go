package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is a schema handle bound to a single collection.
type SchemaClient interface {
	ClassName() string
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Get(ctx context.Context) (*models.Class, error)
	AddProperty(ctx context.Context, property *models.Property) error
}

// Properties of the chunk collection. Identifiers use the "string" data
// type so filters match exactly instead of by token.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "kind", DataType: []string{"string"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "productId", DataType: []string{"string"}},
		{Name: "productName", DataType: []string{"text"}},
		{Name: "source", DataType: []string{"string"}},
		{Name: "productSource", DataType: []string{"string"}},
		{Name: "resourceId", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
	}
}

// EnsureSchema creates the collection with cosine distance, or adds any
// properties an older deployment is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.Exists(ctx)
	if err != nil {
		return err
	}

	properties := Properties()
	if !exists {
		class := &models.Class{
			Class:             client.ClassName(),
			Description:       "Embedded review batches and marketing resources",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		}
		return client.Create(ctx, class)
	}

	class, err := client.Get(ctx)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}

	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
