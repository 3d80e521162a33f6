package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/model"
	"docqa/internal/observability/metrics"
	"docqa/internal/rag"
	"docqa/internal/repository"
	"docqa/internal/storage"
)

const defaultMaxUploadBytes = 20 << 20

// Indexer builds the retrieval index for a stored document.
type Indexer interface {
	Ingest(ctx context.Context, data []byte) (*rag.Index, error)
	Invalidate(ctx context.Context, contentHash string) error
}

type Answerer interface {
	Answer(ctx context.Context, idx *rag.Index, question string) (string, error)
}

type DocumentService struct {
	docs           *repository.DocumentRepository
	files          storage.FileStore
	indexer        Indexer
	answerer       Answerer
	events         EventPublisher
	maxUploadBytes int64
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type DocumentServiceOptions struct {
	MaxUploadBytes int64
	Events         EventPublisher
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

func NewDocumentService(
	docs *repository.DocumentRepository,
	files storage.FileStore,
	indexer Indexer,
	answerer Answerer,
	opts DocumentServiceOptions,
) *DocumentService {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Events == nil {
		opts.Events = NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DocumentService{
		docs:           docs,
		files:          files,
		indexer:        indexer,
		answerer:       answerer,
		events:         opts.Events,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

type UploadInput struct {
	Filename string
	Tags     *string
	Category *string
	Content  io.Reader
}

// Upload validates the file, records its metadata and stores the bytes under
// a fresh storage key. A duplicate filename leaves nothing behind.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	const op = "upload"

	filename := strings.TrimSpace(input.Filename)
	if filename == "" || filename != filepath.Base(filename) || filename == "." {
		return nil, newError(op, ErrValidation, "Invalid filename", nil)
	}
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil, newError(op, ErrValidation, "Unsupported file type. Only PDFs are allowed.", nil)
	}
	if input.Content == nil {
		return nil, newError(op, ErrValidation, "File is required", nil)
	}

	data, err := io.ReadAll(io.LimitReader(input.Content, s.maxUploadBytes+1))
	if err != nil {
		return nil, newError(op, ErrValidation, "Could not read uploaded file", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, newError(op, ErrValidation, fmt.Sprintf("File exceeds %d MB limit", s.maxUploadBytes>>20), nil)
	}

	doc := &model.Document{
		Filename:    filename,
		StorageKey:  uuid.NewString() + ".pdf",
		ContentHash: rag.ContentHash(data),
		SizeBytes:   int64(len(data)),
		Tags:        optional(input.Tags),
		Category:    optional(input.Category),
	}
	if err := s.docs.Insert(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicateFilename) {
			return nil, newError(op, ErrDuplicate, "File already exists.", err)
		}
		return nil, newError(op, ErrInternal, "Failed to save document", err)
	}

	if err := s.files.Save(ctx, doc.StorageKey, bytes.NewReader(data), doc.SizeBytes); err != nil {
		if delErr := s.docs.Delete(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			s.logger.Error("rollback document row failed", "document_id", doc.ID, "error", delErr)
		}
		return nil, newError(op, ErrInternal, "Failed to store file", err)
	}

	s.publish(ctx, model.EventDocumentUploaded, doc)
	s.logger.Info("document uploaded", "document_id", doc.ID, "filename", doc.Filename, "size_bytes", doc.SizeBytes)
	return doc, nil
}

type SearchInput struct {
	Query     string
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
}

func (s *DocumentService) Search(ctx context.Context, input SearchInput) ([]model.Document, error) {
	docs, err := s.docs.Find(ctx, repository.DocumentFilter{
		Query:     input.Query,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Category:  input.Category,
	})
	if err != nil {
		return nil, newError("search", ErrInternal, "Search failed", err)
	}
	return docs, nil
}

// Delete removes the stored file, then the row, then any cached index.
func (s *DocumentService) Delete(ctx context.Context, id uint) error {
	const op = "delete"

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return newError(op, ErrNotFound, "File not found.", err)
		}
		return newError(op, ErrInternal, "Failed to delete document", err)
	}

	if err := s.files.Delete(ctx, doc.StorageKey); err != nil {
		return newError(op, ErrInternal, "Failed to delete file", err)
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return newError(op, ErrNotFound, "File not found.", err)
		}
		return newError(op, ErrInternal, "Failed to delete document", err)
	}
	if err := s.indexer.Invalidate(ctx, doc.ContentHash); err != nil {
		s.logger.Warn("invalidate index cache failed", "document_id", doc.ID, "error", err)
	}

	s.publish(ctx, model.EventDocumentDeleted, doc)
	s.logger.Info("document deleted", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

type AskInput struct {
	Filename string
	Question string
}

// Ask answers a question from a single stored document.
func (s *DocumentService) Ask(ctx context.Context, input AskInput) (string, error) {
	answer, outcome, err := s.ask(ctx, input)
	s.metrics.AskOutcome(outcome)
	return answer, err
}

func (s *DocumentService) ask(ctx context.Context, input AskInput) (string, string, error) {
	const op = "ask"

	filename := strings.TrimSpace(input.Filename)
	question := strings.TrimSpace(input.Question)
	if filename == "" {
		return "", "invalid", newError(op, ErrValidation, "Filename is required", nil)
	}
	if question == "" {
		return "", "invalid", newError(op, ErrValidation, "Question is required", nil)
	}

	doc, err := s.docs.GetByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return "", "not_found", newError(op, ErrNotFound, "File not found", err)
		}
		return "", "error", newError(op, ErrInternal, "Failed to load document", err)
	}

	data, err := s.readStored(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", "not_found", newError(op, ErrNotFound, "File not found", err)
		}
		return "", "error", newError(op, ErrInternal, "Failed to read document", err)
	}

	idx, err := s.indexer.Ingest(ctx, data)
	if err != nil {
		s.logger.Error("ingest document failed", "filename", doc.Filename, "error", err)
		return "", "ingest_error", newError(op, ErrIngestion, "Error processing your question.", err)
	}

	answer, err := s.answerer.Answer(ctx, idx, question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyPrompt) {
			return "", "invalid", newError(op, ErrValidation, "Question is required", err)
		}
		s.logger.Error("answer question failed", "filename", doc.Filename, "error", err)
		return "", "answer_error", newError(op, ErrAnswer, "Error processing your question.", err)
	}
	return answer, "ok", nil
}

func (s *DocumentService) readStored(ctx context.Context, key string) ([]byte, error) {
	exists, err := s.files.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrObjectNotFound
	}
	rc, err := s.files.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *DocumentService) publish(ctx context.Context, eventType string, doc *model.Document) {
	event := model.DocumentEvent{
		Type:        eventType,
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		StorageKey:  doc.StorageKey,
		ContentHash: doc.ContentHash,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish document event failed", "type", eventType, "document_id", doc.ID, "error", err)
	}
}

// optional maps blank form values to NULL.
func optional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
