package indexing_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/vector"
)

// fakeEmbedder returns a vector derived from the text length.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

// recordingStore keeps the scope contents like a real collection would.
type recordingStore struct {
	mu        sync.Mutex
	ops       []string
	deletes   []vector.Scope
	inserts   [][]vector.Chunk
	contents  map[string][]vector.Chunk
	deleteErr error
	insertErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{contents: make(map[string][]vector.Chunk)}
}

func (s *recordingStore) DeleteScope(ctx context.Context, scope vector.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete")
	s.deletes = append(s.deletes, scope)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for key, chunks := range s.contents {
		kept := chunks[:0]
		for _, c := range chunks {
			if !inScope(scope, c) {
				kept = append(kept, c)
			}
		}
		s.contents[key] = kept
	}
	return nil
}

func (s *recordingStore) InsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "insert")
	s.inserts = append(s.inserts, chunks)
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, c := range chunks {
		key := c.Source + "|" + c.ProductSource + "|" + c.ResourceID
		s.contents[key] = append(s.contents[key], c)
	}
	return nil
}

func (s *recordingStore) all() []vector.Chunk {
	var out []vector.Chunk
	for _, chunks := range s.contents {
		out = append(out, chunks...)
	}
	return out
}

func inScope(scope vector.Scope, c vector.Chunk) bool {
	switch {
	case scope.ResourceID != "":
		return c.ResourceID == scope.ResourceID
	case scope.Source != "":
		return c.Source == scope.Source && c.ProductSource == scope.ProductSource
	}
	for _, ps := range scope.ProductSources {
		if c.ProductSource == ps {
			return true
		}
	}
	return false
}

type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) UpdateLastIndexedAt(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func docs(n int) []vector.Chunk {
	out := make([]vector.Chunk, n)
	for i := range out {
		out[i] = vector.Chunk{Content: strings.Repeat("x", i+1), Source: "amazon", ProductSource: "B0TEST", ChunkIndex: i}
	}
	return out
}

func TestWriter_ReindexScope(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	products := new(MockProducts)
	products.On("UpdateLastIndexedAt", ctx, "p1", mock.AnythingOfType("time.Time")).Return(nil).Once()

	w := indexing.NewWriter(&fakeEmbedder{}, store, products, 4)
	res := w.ReindexScope(ctx, vector.SourceScope("amazon", "B0TEST"), "p1", docs(5))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 5, res.Chunks)
	assert.Equal(t, []string{"delete", "insert"}, store.ops)

	// Vectors line up with their documents despite concurrent embedding.
	for i, c := range store.inserts[0] {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, []float32{float32(i + 1)}, c.Vector)
	}
	products.AssertExpectations(t)
}

func TestWriter_ReindexScope_EmbedFailureLeavesScopeUntouched(t *testing.T) {
	store := newRecordingStore()
	w := indexing.NewWriter(&fakeEmbedder{err: errors.New("quota exceeded")}, store, nil, 2)

	res := w.ReindexScope(context.Background(), vector.SourceScope("amazon", "B0TEST"), "p1", docs(3))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "quota exceeded")
	assert.Empty(t, store.ops)
}

func TestWriter_ReindexScope_DeleteFailure(t *testing.T) {
	store := newRecordingStore()
	store.deleteErr = errors.New("weaviate down")
	w := indexing.NewWriter(&fakeEmbedder{}, store, nil, 2)

	res := w.ReindexScope(context.Background(), vector.SourceScope("amazon", "B0TEST"), "p1", docs(2))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "delete scope")
	assert.Equal(t, []string{"delete"}, store.ops)
}

func TestWriter_ReindexScope_InsertFailureLeavesScopeEmpty(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	w := indexing.NewWriter(&fakeEmbedder{}, store, nil, 2)
	scope := vector.SourceScope("amazon", "B0TEST")

	require.True(t, w.ReindexScope(ctx, scope, "", docs(2)).Success)
	require.Len(t, store.all(), 2)

	store.insertErr = errors.New("batch rejected")
	res := w.ReindexScope(ctx, scope, "", docs(2))
	assert.False(t, res.Success)
	assert.Empty(t, store.all())

	// A retry repopulates.
	store.insertErr = nil
	require.True(t, w.ReindexScope(ctx, scope, "", docs(2)).Success)
	assert.Len(t, store.all(), 2)
}

func TestWriter_ReindexScope_TimestampFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	products := new(MockProducts)
	products.On("UpdateLastIndexedAt", ctx, "p1", mock.Anything).Return(errors.New("db down")).Once()

	w := indexing.NewWriter(&fakeEmbedder{}, newRecordingStore(), products, 1)
	res := w.ReindexScope(ctx, vector.ResourceScope("r1"), "p1", docs(1))

	assert.True(t, res.Success)
	products.AssertExpectations(t)
}

func TestWriter_ReindexScope_RejectsEmptyScope(t *testing.T) {
	store := newRecordingStore()
	w := indexing.NewWriter(&fakeEmbedder{}, store, nil, 1)

	res := w.ReindexScope(context.Background(), vector.Scope{}, "p1", docs(1))

	assert.False(t, res.Success)
	assert.Empty(t, store.ops)
}

func TestWriter_ReindexScope_EmptyDocsClearsScope(t *testing.T) {
	store := newRecordingStore()
	w := indexing.NewWriter(&fakeEmbedder{}, store, nil, 1)

	res := w.ReindexScope(context.Background(), vector.ResourceScope("r1"), "", nil)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"delete"}, store.ops)
}
