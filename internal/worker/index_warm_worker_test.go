package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
	"docqa/internal/rag"
	"docqa/internal/storage"
)

type fakeIngester struct {
	inputs [][]byte
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, data []byte) (*rag.Index, error) {
	f.inputs = append(f.inputs, data)
	if f.err != nil {
		return nil, f.err
	}
	return rag.NewIndex([]rag.Chunk{{Page: 1, Text: "t"}}, [][]float32{{1}})
}

func newTestWorker(t *testing.T) (*IndexWarmWorker, *storage.LocalFS, *fakeIngester) {
	t.Helper()
	files, err := storage.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ing := &fakeIngester{}
	return NewIndexWarmWorker(nil, files, ing, "q", nil), files, ing
}

func eventBody(t *testing.T, e model.DocumentEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestProcessWarmsUploadedDocument(t *testing.T) {
	w, files, ing := newTestWorker(t)
	ctx := context.Background()
	require.NoError(t, files.Save(ctx, "k.pdf", strings.NewReader("pdf bytes"), 9))

	err := w.process(ctx, eventBody(t, model.DocumentEvent{Type: model.EventDocumentUploaded, DocumentID: 1, StorageKey: "k.pdf"}))
	require.NoError(t, err)
	require.Len(t, ing.inputs, 1)
	assert.Equal(t, "pdf bytes", string(ing.inputs[0]))
}

func TestProcessIgnoresOtherEvents(t *testing.T) {
	w, _, ing := newTestWorker(t)

	err := w.process(context.Background(), eventBody(t, model.DocumentEvent{Type: model.EventDocumentDeleted, StorageKey: "k.pdf"}))
	require.NoError(t, err)
	assert.Empty(t, ing.inputs)
}

func TestProcessFailures(t *testing.T) {
	w, files, ing := newTestWorker(t)
	ctx := context.Background()

	require.Error(t, w.process(ctx, []byte("{not json")))

	err := w.process(ctx, eventBody(t, model.DocumentEvent{Type: model.EventDocumentUploaded, StorageKey: "missing.pdf"}))
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	require.NoError(t, files.Save(ctx, "k.pdf", strings.NewReader("x"), 1))
	ing.err = errors.New("embed down")
	err = w.process(ctx, eventBody(t, model.DocumentEvent{Type: model.EventDocumentUploaded, StorageKey: "k.pdf"}))
	require.ErrorIs(t, err, ing.err)
}

func TestCloseWithoutStart(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.Close()
}

type recordingAcker struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *recordingAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *recordingAcker) settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked) + len(a.nacked)
}

func TestRunAcksWarmedAndDropsFailed(t *testing.T) {
	w, files, ing := newTestWorker(t)
	ctx := context.Background()
	require.NoError(t, files.Save(ctx, "k.pdf", strings.NewReader("pdf bytes"), 9))

	acker := &recordingAcker{}
	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1,
		Body: eventBody(t, model.DocumentEvent{Type: model.EventDocumentUploaded, DocumentID: 1, StorageKey: "k.pdf"})}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("{not json")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3,
		Body: eventBody(t, model.DocumentEvent{Type: model.EventDocumentDeleted, DocumentID: 1, StorageKey: "k.pdf"})}

	var closed bool
	w.run(ctx, deliveries, func() { closed = true })
	require.Eventually(t, func() bool { return acker.settled() == 3 }, time.Second, 5*time.Millisecond)

	w.Close()
	assert.True(t, closed)
	assert.Equal(t, []uint64{1, 3}, acker.acked)
	assert.Equal(t, []uint64{2}, acker.nacked)
	assert.Equal(t, []bool{false}, acker.requeue)
	assert.Len(t, ing.inputs, 1)
}

func TestRunStopsWhenDeliveriesClose(t *testing.T) {
	files, err := storage.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	var logs bytes.Buffer
	w := NewIndexWarmWorker(nil, files, &fakeIngester{}, "docqa.index.warm", slog.New(slog.NewJSONHandler(&logs, nil)))

	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})
	w.run(context.Background(), deliveries, func() { close(done) })
	close(deliveries)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the delivery channel closed")
	}
	w.Close()
	assert.Contains(t, logs.String(), "delivery channel closed")
}

func TestCloseStopsRunningWorker(t *testing.T) {
	w, _, _ := newTestWorker(t)
	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})

	w.run(context.Background(), deliveries, func() { close(done) })
	w.Close()

	select {
	case <-done:
	default:
		t.Fatal("Close returned before the consume loop exited")
	}
}
