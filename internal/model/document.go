package model

import "time"

// Document is the metadata row for one uploaded PDF. StorageKey is the
// object name in the file store; Filename is only ever shown to users.
type Document struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Filename    string    `gorm:"size:255;not null;uniqueIndex" json:"filename"`
	StorageKey  string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ContentHash string    `gorm:"size:64;not null;index" json:"-"`
	SizeBytes   int64     `gorm:"not null" json:"-"`
	UploadDate  time.Time `gorm:"not null;index" json:"upload_date"`
	Tags        *string   `gorm:"size:512" json:"tags"`
	Category    *string   `gorm:"size:128;index" json:"category"`
}

func (Document) TableName() string {
	return "documents"
}
