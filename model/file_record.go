package model

import (
	"strings"
	"time"
)

// FolderContentType marks a zero-byte placeholder row standing in for a directory.
const FolderContentType = "application/x-directory"

type FileRecord struct {
	Key string `gorm:"column:key;primaryKey;size:768" json:"key"`

	Name        string `gorm:"column:name;size:255;not null" json:"name"`
	Size        int64  `gorm:"column:size;not null;default:0" json:"size"`
	ContentType string `gorm:"column:content_type;size:255;not null" json:"content_type"`

	UploadedAt time.Time `gorm:"column:uploaded_at;not null;index" json:"uploaded_at"`

	// UserID is nil for rows written before ownership was tracked.
	UserID      *string `gorm:"column:user_id;size:64;index" json:"user_id,omitempty"`
	BlurDataURL *string `gorm:"column:blur_data_url;type:text" json:"blur_data_url,omitempty"`
}

// TableName returns the database table name.
func (FileRecord) TableName() string {
	return "files"
}

// IsFolder reports whether the record is a folder marker.
func (f *FileRecord) IsFolder() bool {
	return f.ContentType == FolderContentType && strings.HasSuffix(f.Key, "/")
}

// OwnedBy reports whether userID owns the record. Legacy rows have no owner.
func (f *FileRecord) OwnedBy(userID string) bool {
	return f.UserID != nil && userID != "" && *f.UserID == userID
}
