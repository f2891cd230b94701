package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/models"
)

// ErrTooLarge is returned when a payload exceeds the configured limit
var ErrTooLarge = errors.New("payload exceeds upload limit")

// Reader reads uploaded files up to a fixed size
type Reader struct {
	maxBytes int64
}

// NewReader creates a reader that accepts at most maxBytes per file
func NewReader(maxBytes int64) *Reader {
	return &Reader{
		maxBytes: maxBytes,
	}
}

// Read consumes r and returns an UploadedFile carrying its bytes and digest.
// Empty and oversized payloads are validation errors.
func (pr *Reader) Read(r io.Reader, filename, contentType string) (*models.UploadedFile, error) {
	const op = "payload.read"

	if filename == "" {
		return nil, apperr.New(apperr.Validation, op, "No file provided")
	}

	// One extra byte tells an exact-limit file apart from an oversized one
	data, err := io.ReadAll(io.LimitReader(r, pr.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, op, fmt.Errorf("error reading payload: %w", err))
	}
	if int64(len(data)) > pr.maxBytes {
		return nil, &apperr.Error{Kind: apperr.Validation, Op: op, Msg: "File too large", Err: ErrTooLarge}
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.Validation, op, "File is empty")
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &models.UploadedFile{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		Hash:        ComputeHash(data),
	}, nil
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyHash reports whether data matches the expected digest
func VerifyHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}
