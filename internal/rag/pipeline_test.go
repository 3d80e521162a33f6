package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/pkg/pdfextract"
)

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{ChunkSize: 40, ChunkOverlap: 5, BatchSize: 2, EmbeddingModel: "bag"}
}

func samplePages() []pdfextract.Page {
	return []pdfextract.Page{
		{Number: 1, Text: "The invoice total is 420 euros including tax."},
		{Number: 2, Text: "Payment is due within thirty days of the invoice date."},
		{Number: 3, Text: "Shipping was handled by a courier service."},
	}
}

func TestIngestBuildsIndexInBatches(t *testing.T) {
	extractor := &fakeExtractor{pages: samplePages()}
	embedder := &bagEmbedder{}
	p := NewPipeline(extractor, embedder, nil, testPipelineConfig(), nil, nil)

	idx, err := p.Ingest(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)
	require.Greater(t, idx.Len(), 3)

	total := 0
	for _, n := range embedder.batchSizes {
		assert.LessOrEqual(t, n, 2)
		total += n
	}
	assert.Equal(t, idx.Len(), total)

	for _, c := range idx.Snapshot().Chunks {
		assert.Contains(t, []int{1, 2, 3}, c.Page)
	}
}

func TestIngestWithoutCacheRebuildsEveryTime(t *testing.T) {
	extractor := &fakeExtractor{pages: samplePages()}
	p := NewPipeline(extractor, &bagEmbedder{}, nil, testPipelineConfig(), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := p.Ingest(context.Background(), []byte("same"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, extractor.calls)
}

func TestIngestUsesContentAddressedCache(t *testing.T) {
	extractor := &fakeExtractor{pages: samplePages()}
	embedder := &bagEmbedder{}
	cache := newMemoryCache()
	p := NewPipeline(extractor, embedder, cache, testPipelineConfig(), nil, nil)
	ctx := context.Background()

	first, err := p.Ingest(ctx, []byte("v1"))
	require.NoError(t, err)
	calls := embedder.batchCalls

	second, err := p.Ingest(ctx, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, calls, embedder.batchCalls)
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, first.Len(), second.Len())

	_, err = p.Ingest(ctx, []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, 2, extractor.calls)

	require.NoError(t, p.Invalidate(ctx, ContentHash([]byte("v1"))))
	_, err = p.Ingest(ctx, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, 3, extractor.calls)
}

func TestIngestIgnoresCacheReadErrors(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errBoom
	p := NewPipeline(&fakeExtractor{pages: samplePages()}, &bagEmbedder{}, cache, testPipelineConfig(), nil, nil)

	idx, err := p.Ingest(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Greater(t, idx.Len(), 0)
}

func TestIngestFailures(t *testing.T) {
	ctx := context.Background()

	p := NewPipeline(&fakeExtractor{err: errBoom}, &bagEmbedder{}, nil, testPipelineConfig(), nil, nil)
	_, err := p.Ingest(ctx, []byte("x"))
	require.ErrorIs(t, err, ErrIngestion)
	require.ErrorIs(t, err, errBoom)

	p = NewPipeline(&fakeExtractor{}, &bagEmbedder{}, nil, testPipelineConfig(), nil, nil)
	_, err = p.Ingest(ctx, []byte("x"))
	require.ErrorIs(t, err, ErrIngestion)
	require.ErrorIs(t, err, ErrNoText)

	cache := newMemoryCache()
	p = NewPipeline(&fakeExtractor{pages: samplePages()}, &bagEmbedder{failBatch: errBoom}, cache, testPipelineConfig(), nil, nil)
	_, err = p.Ingest(ctx, []byte("x"))
	require.ErrorIs(t, err, ErrIngestion)
	assert.Empty(t, cache.entries)
}

func TestCacheKeyCarriesParameters(t *testing.T) {
	p := NewPipeline(&fakeExtractor{}, &bagEmbedder{}, nil, testPipelineConfig(), nil, nil)
	key := p.CacheKey("abc")
	assert.True(t, strings.HasPrefix(key, "docqa:index:bag:40:5:"))
	assert.True(t, strings.HasSuffix(key, ":abc"))
	assert.Len(t, ContentHash([]byte("x")), 64)
}
