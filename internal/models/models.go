package models

import "time"

// DocumentRecord represents document metadata stored in TiDB.
// IndexRef is empty until the index backend has acknowledged ingestion.
type DocumentRecord struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Filename        string    `json:"filename"`
	StorageLocation string    `json:"storageLocation"`
	ContentType     string    `json:"contentType"`
	CreatedAt       time.Time `json:"createdAt"`
	IndexRef        string    `json:"indexRef,omitempty"`
}

// Indexed reports whether the backend has acknowledged this record
func (d *DocumentRecord) Indexed() bool {
	return d.IndexRef != ""
}

// IndexEntry is an entry in the external index backend
type IndexEntry struct {
	IndexRef   string `json:"doc_id"`
	ChunkCount int    `json:"chunks"`
}

// EnrichedDocument is a record joined with its live index entry
type EnrichedDocument struct {
	DocumentRecord
	ChunkCount int  `json:"chunks"`
	InIndex    bool `json:"inVectorStore"`
}

// UploadedFile holds an inbound file during upload
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Hash        string
}

// User is an account that can be issued session credentials
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
