package model

import "time"

const (
	EventDocumentUploaded = "document.uploaded"
	EventDocumentDeleted  = "document.deleted"
)

// DocumentEvent is published after a document is stored or removed.
type DocumentEvent struct {
	Type        string    `json:"type"`
	DocumentID  uint      `json:"document_id"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"storage_key"`
	ContentHash string    `json:"content_hash"`
	OccurredAt  time.Time `json:"occurred_at"`
}
