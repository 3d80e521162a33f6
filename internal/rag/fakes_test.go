package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"docqa/internal/ai"
	"docqa/internal/pkg/pdfextract"
)

type fakeExtractor struct {
	pages []pdfextract.Page
	err   error
	calls int
}

func (f *fakeExtractor) ExtractPages([]byte) ([]pdfextract.Page, error) {
	f.calls++
	return f.pages, f.err
}

// bagEmbedder hashes words into a small vector so related texts score higher.
type bagEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	batchSizes []int
	failBatch  error
	failQuery  error
}

const bagDim = 1024

func bagVector(text string) []float32 {
	v := make([]float32, bagDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!:;")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%bagDim]++
	}
	return v
}

func (e *bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.failQuery != nil {
		return nil, e.failQuery
	}
	return bagVector(text), nil
}

func (e *bagEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchCalls++
	e.batchSizes = append(e.batchSizes, len(texts))
	e.mu.Unlock()
	if e.failBatch != nil {
		return nil, e.failBatch
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagVector(t)
	}
	return out, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*Snapshot
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*Snapshot{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (*Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.entries[key]
	return s, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, s *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = s
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

type fakeCompleter struct {
	answer   string
	err      error
	messages []ai.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.messages = messages
	return f.answer, f.err
}

var errBoom = errors.New("boom")
