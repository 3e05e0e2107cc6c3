package vector

import (
	"errors"
	"fmt"
	"strings"
)

// Chunk kinds stored in the shared collection.
const (
	KindReview   = "review"
	KindResource = "resource"
)

// Chunk is one embedded document in the vector collection.
type Chunk struct {
	Content       string
	Vector        []float32
	Kind          string
	Title         string
	ProductID     string
	ProductName   string
	Source        string
	ProductSource string
	ResourceID    string
	ChunkIndex    int
}

var ErrEmptyScope = errors.New("scope matches no partition")

// Scope names the partition of the collection a writer owns. Exactly one
// shape is set: a resource id, a (source, productSource) pair, or a set of
// productSource values.
type Scope struct {
	ResourceID     string
	Source         string
	ProductSource  string
	ProductSources []string
}

func ResourceScope(resourceID string) Scope {
	return Scope{ResourceID: resourceID}
}

func SourceScope(source, productSource string) Scope {
	return Scope{Source: source, ProductSource: productSource}
}

func ProductSourcesScope(productSources []string) Scope {
	return Scope{ProductSources: productSources}
}

// Validate rejects scopes that would widen into a full-collection operation.
func (s Scope) Validate() error {
	switch {
	case s.ResourceID != "":
		return nil
	case s.Source != "" && s.ProductSource != "":
		return nil
	case s.Source == "" && s.ProductSource == "" && len(s.ProductSources) > 0:
		for _, ps := range s.ProductSources {
			if ps == "" {
				return fmt.Errorf("%w: blank productSource", ErrEmptyScope)
			}
		}
		return nil
	}
	return ErrEmptyScope
}

func (s Scope) String() string {
	switch {
	case s.ResourceID != "":
		return "resource:" + s.ResourceID
	case s.Source != "":
		return s.Source + ":" + s.ProductSource
	default:
		return "productSources:" + strings.Join(s.ProductSources, ",")
	}
}
