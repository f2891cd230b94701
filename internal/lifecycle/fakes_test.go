package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/indexclient"
	"github.com/maneesh/docsync/internal/models"
)

var errBackendDown = apperr.Wrap(apperr.IndexBackendUnavailable, "fake", errors.New("connection refused"))

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	clock   time.Time
	records map[string]*models.DocumentRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		records: map[string]*models.DocumentRecord{},
	}
}

func (s *fakeStore) Create(_ context.Context, ownerID, filename, location, contentType string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := &models.DocumentRecord{
		ID:              fmt.Sprintf("doc-%d", s.seq),
		OwnerID:         ownerID,
		Filename:        filename,
		StorageLocation: location,
		ContentType:     contentType,
		CreatedAt:       s.clock.Add(time.Duration(s.seq) * time.Second),
	}
	s.records[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) list(ownerID string, onlyUnindexed bool) []*models.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.DocumentRecord{}
	for _, r := range s.records {
		if r.OwnerID != ownerID || (onlyUnindexed && r.Indexed()) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *fakeStore) ListByOwner(_ context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	return s.list(ownerID, false), nil
}

func (s *fakeStore) ListUnindexed(_ context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	return s.list(ownerID, true), nil
}

func (s *fakeStore) FindByID(_ context.Context, recordID, ownerID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok || r.OwnerID != ownerID {
		return nil, apperr.New(apperr.NotFound, "fake.find", "Document not found")
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) SetIndexRef(_ context.Context, recordID, indexRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok {
		return apperr.New(apperr.NotFound, "fake.set_index_ref", "Document not found")
	}
	if r.IndexRef != "" && r.IndexRef != indexRef {
		return apperr.New(apperr.Validation, "fake.set_index_ref", "Document already indexed")
	}
	r.IndexRef = indexRef
	return nil
}

func (s *fakeStore) Delete(_ context.Context, recordID, ownerID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok || r.OwnerID != ownerID {
		return nil, apperr.New(apperr.NotFound, "fake.delete", "Document not found")
	}
	delete(s.records, recordID)
	return r, nil
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	checksums map[string]string
	deleted   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, checksums: map[string]string{}}
}

func (b *fakeBlobs) PutObject(_ context.Context, key string, data []byte, _, checksum string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	b.checksums[key] = checksum
	return nil
}

func (b *fakeBlobs) GetObject(_ context.Context, key string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return data, b.checksums[key], nil
}

func (b *fakeBlobs) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	delete(b.checksums, key)
	b.deleted = append(b.deleted, key)
	return nil
}

type queryCall struct {
	token, question, indexRef string
}

type fakeIndex struct {
	mu sync.Mutex

	entries map[string]int
	nextRef string
	chunks  int

	ingestErr error
	queryErr  error
	deleteErr error
	listErr   error

	ingestCalls  int
	listCalls    int
	deleted      []string
	deleteCtxErr error
	queries      []queryCall

	// afterList runs once ListEntries has its snapshot, outside the lock
	afterList func()
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]int{}}
}

func (f *fakeIndex) Ingest(_ context.Context, _ string, _ []byte, _, _ string) (*indexclient.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingestCalls++
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	ref := f.nextRef
	if ref == "" {
		ref = fmt.Sprintf("v%d", f.ingestCalls)
	}
	f.entries[ref] = f.chunks
	return &indexclient.IngestResult{IndexRef: ref, ChunkCount: f.chunks}, nil
}

func (f *fakeIndex) Query(_ context.Context, token, question, indexRef string) (*indexclient.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queryCall{token: token, question: question, indexRef: indexRef})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &indexclient.Answer{Answer: "answer to " + question}, nil
}

func (f *fakeIndex) DeleteEntry(ctx context.Context, _ string, indexRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCtxErr = ctx.Err()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.entries, indexRef)
	f.deleted = append(f.deleted, indexRef)
	return nil
}

func (f *fakeIndex) ListEntries(_ context.Context, _ string) ([]models.IndexEntry, error) {
	f.mu.Lock()
	f.listCalls++
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := []models.IndexEntry{}
	for ref, n := range f.entries {
		out = append(out, models.IndexEntry{IndexRef: ref, ChunkCount: n})
	}
	hook := f.afterList
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IndexRef < out[j].IndexRef })
	if hook != nil {
		hook()
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
