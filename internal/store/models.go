package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Page is a journal page: a title, a structured content tree stored as
// canonical JSON, an optional map location and an optional calendar
// date.
type Page struct {
	ID         string
	Title      string
	Content    []byte
	Lat        *float64
	Lng        *float64
	Zoom       *float64
	CustomDate *string
	// SearchText is the flattened text of the content tree. It feeds
	// the generated fts column and is never read back.
	SearchText string
	CreatedBy  string
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PageVersion is one row of a page's version history. Consecutive
// auto-saves sharing a SaveSessionID collapse into a single row; the
// row's UpdatedAt tracks the last merge.
type PageVersion struct {
	ID            int64
	PageID        string
	Title         string
	Content       []byte
	SaveSessionID string
	SavedBy       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Attachment records an uploaded editor asset stored in the blob
// backend.
type Attachment struct {
	ID          string
	PageID      string
	FileName    string
	ContentType string
	Size        int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}
