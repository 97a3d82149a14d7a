package models

import "time"

// File records one stored upload. StoredName is the generated name on disk and
// in the retrieval URL; OriginalName is what the client uploaded.
type File struct {
	ID           uint      `gorm:"primaryKey"`
	StoredName   string    `gorm:"uniqueIndex;size:64;not null"`
	OriginalName string    `gorm:"size:255;not null"`
	Size         int64     `gorm:"not null"`
	Kind         string    `gorm:"size:16;not null"`
	ContentType  string    `gorm:"size:128"`
	CreatedAt    time.Time
}
