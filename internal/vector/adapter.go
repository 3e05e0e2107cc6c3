package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateSchema runs schema calls against one collection.
type WeaviateSchema struct {
	client    *weaviate.Client
	className string
}

func NewWeaviateSchema(client *weaviate.Client, className string) *WeaviateSchema {
	return &WeaviateSchema{client: client, className: className}
}

func (a *WeaviateSchema) ClassName() string {
	return a.className
}

func (a *WeaviateSchema) Exists(ctx context.Context) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(a.className).Do(ctx)
}

func (a *WeaviateSchema) Create(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *WeaviateSchema) Get(ctx context.Context) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(a.className).Do(ctx)
}

func (a *WeaviateSchema) AddProperty(ctx context.Context, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(a.className).WithProperty(property).Do(ctx)
}
