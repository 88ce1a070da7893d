package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentStatus is the processing lifecycle state of a document. Transitions
// only move forward (uploaded -> processing -> completed/failed), except for
// an explicit reprocess which resets the document to uploaded.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the main record for an uploaded file and its processing results.
type Document struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	OriginalFilename string         `gorm:"size:500;not null"`
	ContentType      string         `gorm:"size:100;not null"`
	FileSize         int64          `gorm:"not null"`
	BlobKey          string         `gorm:"size:1000;not null;uniqueIndex"`
	Status           DocumentStatus `gorm:"size:20;not null;default:uploaded;index"`
	PageCount        int
	OCRText          string `gorm:"type:text"`

	// AI-derived metadata. Recognized fields are typed; the unparsed model
	// response is kept verbatim in AIRawResponse.
	Category           string `gorm:"size:100"`
	CategoryConfidence float64
	Summary            string     `gorm:"type:text"`
	Tags               StringList `gorm:"type:jsonb"`
	Entities           *Entities  `gorm:"type:jsonb"`
	DocumentDate       string     `gorm:"size:20"`
	KeyPoints          StringList `gorm:"type:jsonb"`
	AIRawResponse      RawJSON    `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Processable reports whether the document may be picked up by a worker.
// Anything already processing or completed is skipped on duplicate delivery.
func (d *Document) Processable() bool {
	return d.Status == StatusUploaded || d.Status == StatusFailed
}
