package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
	"docqa/internal/rag"
	"docqa/internal/storage"
)

// Ingester primes the index cache for a document's bytes.
type Ingester interface {
	Ingest(ctx context.Context, data []byte) (*rag.Index, error)
}

// IndexWarmWorker consumes document events and builds the cached index for
// new uploads so the first question does not pay for ingestion.
type IndexWarmWorker struct {
	conn      *amqp.Connection
	files     storage.FileStore
	ingester  Ingester
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexWarmWorker(conn *amqp.Connection, files storage.FileStore, ingester Ingester, queueName string, logger *slog.Logger) *IndexWarmWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexWarmWorker{
		conn:      conn,
		files:     files,
		ingester:  ingester,
		queueName: queueName,
		logger:    logger.With("component", "index_warm_worker"),
	}
}

func (w *IndexWarmWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	// Ingestion is heavy; take one delivery at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.run(ctx, deliveries, func() { _ = ch.Close() })
	w.logger.Info("worker started", "queue", w.queueName)
	return nil
}

// run drains deliveries on a goroutine until ctx is cancelled, Close is
// called or the broker closes the channel. done runs once the loop exits.
func (w *IndexWarmWorker) run(ctx context.Context, deliveries <-chan amqp.Delivery, done func()) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer done()
		w.consume(workerCtx, deliveries)
	}()
}

func (w *IndexWarmWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				// amqp091 does not reconnect; the next restart resumes warming.
				w.logger.Warn("delivery channel closed, index warm-up stopped", "queue", w.queueName)
				return
			}
			if err := w.process(ctx, d.Body); err != nil {
				w.logger.Error("warm index failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// process handles one event body. Events other than uploads are ignored.
func (w *IndexWarmWorker) process(ctx context.Context, body []byte) error {
	var event model.DocumentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode document event: %w", err)
	}
	if event.Type != model.EventDocumentUploaded {
		return nil
	}

	rc, err := w.files.Open(ctx, event.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("document %d was removed before warm-up: %w", event.DocumentID, err)
		}
		return fmt.Errorf("open document %d: %w", event.DocumentID, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("read document %d: %w", event.DocumentID, err)
	}

	idx, err := w.ingester.Ingest(ctx, data)
	if err != nil {
		return fmt.Errorf("ingest document %d: %w", event.DocumentID, err)
	}
	w.logger.Debug("index warmed", "document_id", event.DocumentID, "chunks", idx.Len())
	return nil
}

func (w *IndexWarmWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
