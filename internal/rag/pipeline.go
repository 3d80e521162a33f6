package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docqa/internal/observability/metrics"
	"docqa/internal/pkg/pdfextract"
)

var (
	ErrIngestion   = errors.New("ingestion failed")
	ErrAnswer      = errors.New("answer generation failed")
	ErrNoText      = errors.New("document has no extractable text")
	ErrEmptyPrompt = errors.New("question is empty")
)

var tracer = otel.Tracer("docqa/rag")

type Extractor interface {
	ExtractPages(data []byte) ([]pdfextract.Page, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexCache stores built indexes by key. Implementations report a miss as
// (nil, false, nil).
type IndexCache interface {
	Get(ctx context.Context, key string) (*Snapshot, bool, error)
	Set(ctx context.Context, key string, snapshot *Snapshot) error
	Delete(ctx context.Context, key string) error
}

type PipelineConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	EmbeddingModel string
}

// Pipeline turns PDF bytes into an Index. Without a cache every call
// re-extracts and re-embeds the whole document.
type Pipeline struct {
	extractor Extractor
	embedder  Embedder
	cache     IndexCache
	splitter  *Splitter
	cfg       PipelineConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewPipeline(extractor Extractor, embedder Embedder, cache IndexCache, cfg PipelineConfig, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	splitter := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	cfg.ChunkSize, cfg.ChunkOverlap = splitter.ChunkSize, splitter.Overlap
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		cache:     cache,
		splitter:  splitter,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// ContentHash is the hex SHA-256 of a stored file.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CacheKey includes the chunking and embedding parameters so a config change
// never serves vectors built under different settings.
func (p *Pipeline) CacheKey(contentHash string) string {
	return fmt.Sprintf("docqa:index:%s:%d:%d:%s", p.cfg.EmbeddingModel, p.cfg.ChunkSize, p.cfg.ChunkOverlap, contentHash)
}

func (p *Pipeline) Ingest(ctx context.Context, data []byte) (*Index, error) {
	ctx, span := tracer.Start(ctx, "rag.ingest")
	defer span.End()

	hash := ContentHash(data)
	span.SetAttributes(attribute.String("content_hash", hash))

	if idx := p.cached(ctx, hash); idx != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return idx, nil
	}

	idx, err := p.build(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return nil, fmt.Errorf("ingest: %w: %w", ErrIngestion, err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, p.CacheKey(hash), idx.Snapshot()); err != nil {
			p.logger.Warn("index cache write failed", "content_hash", hash, "error", err)
		}
	}
	return idx, nil
}

// Invalidate drops the cached index for a document's content.
func (p *Pipeline) Invalidate(ctx context.Context, contentHash string) error {
	if p.cache == nil || contentHash == "" {
		return nil
	}
	return p.cache.Delete(ctx, p.CacheKey(contentHash))
}

func (p *Pipeline) cached(ctx context.Context, hash string) *Index {
	if p.cache == nil {
		return nil
	}
	snapshot, ok, err := p.cache.Get(ctx, p.CacheKey(hash))
	if err != nil {
		p.metrics.IndexCache("error")
		p.logger.Warn("index cache read failed", "content_hash", hash, "error", err)
		return nil
	}
	if !ok {
		p.metrics.IndexCache("miss")
		return nil
	}
	idx, err := FromSnapshot(snapshot)
	if err != nil {
		p.metrics.IndexCache("error")
		p.logger.Warn("discarding corrupt cached index", "content_hash", hash, "error", err)
		return nil
	}
	p.metrics.IndexCache("hit")
	return idx
}

func (p *Pipeline) build(ctx context.Context, data []byte) (*Index, error) {
	started := time.Now()
	pages, err := p.extractor.ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	p.metrics.ObserveStage("extract", time.Since(started))

	var chunks []Chunk
	for _, page := range pages {
		for _, text := range p.splitter.Split(page.Text) {
			chunks = append(chunks, Chunk{Page: page.Number, Text: text})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	started = time.Now()
	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-i)
		for _, c := range chunks[i:end] {
			texts = append(texts, c.Text)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", i, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", i, end-1, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	p.metrics.ObserveStage("embed", time.Since(started))

	p.logger.Debug("index built", "pages", len(pages), "chunks", len(chunks))
	return NewIndex(chunks, vectors)
}
