package store

import "time"

// Entry is a single guestbook submission. Image fields hold self-contained
// data-URL strings; an empty Photo means the visitor declined the camera.
type Entry struct {
	ID          int64     `json:"id"`
	Photo       string    `json:"photo,omitempty"`
	Signature   string    `json:"signature"`
	Name        string    `json:"name"`
	Designation string    `json:"designation"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEntry is the write shape for SaveEntry. The store assigns the id and
// stamps the timestamp itself.
type NewEntry struct {
	Photo       string `json:"photo,omitempty"`
	Signature   string `json:"signature"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
}

// Visitor is a pre-registered person used as a photo/name shortcut on the
// kiosk. Name is required; the caller enforces that before persisting.
type Visitor struct {
	ID          int64     `json:"id"`
	Photo       string    `json:"photo,omitempty"`
	Name        string    `json:"name"`
	Designation string    `json:"designation"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewVisitor is the write shape for AddVisitor.
type NewVisitor struct {
	Photo       string `json:"photo,omitempty"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
}
