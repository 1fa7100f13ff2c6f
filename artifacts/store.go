// Package artifacts holds the preview and output images of the page
// workspaces in memory, addressed by opaque ids, until they are released.
package artifacts

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tells previews from outputs.
type Kind string

const (
	KindPreview Kind = "preview"
	KindOutput  Kind = "output"
)

// ErrBudgetExceeded is returned by Put when the store would grow past its
// byte budget.
var ErrBudgetExceeded = errors.New("artifacts: store byte budget exceeded")

// Artifact describes a stored blob.
type Artifact struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name,omitempty"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Resolution returns "WxH", or "" when the size is unknown.
func (a Artifact) Resolution() string {
	if a.Width == 0 || a.Height == 0 {
		return ""
	}
	return Resolution(a.Width, a.Height)
}

type entry struct {
	meta Artifact
	data []byte
}

// Store is a concurrency-safe in-memory blob store.
type Store struct {
	mu     sync.RWMutex
	items  map[string]entry
	bytes  int64
	budget int64
	newID  func() string
	now    func() time.Time
}

// NewStore creates a store. budget <= 0 means unlimited.
func NewStore(budget int64) *Store {
	return &Store{
		items:  make(map[string]entry),
		budget: budget,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Put stores a copy of data and returns its descriptor. Image dimensions
// are filled in when the header can be read.
func (s *Store) Put(kind Kind, name, contentType string, data []byte) (Artifact, error) {
	meta := Artifact{
		Kind:        kind,
		Name:        name,
		ContentType: contentType,
		Size:        len(data),
	}
	if w, h, format, err := Dimensions(data); err == nil {
		meta.Width, meta.Height = w, h
		if meta.ContentType == "" {
			meta.ContentType = "image/" + format
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.budget > 0 && s.bytes+int64(len(data)) > s.budget {
		return Artifact{}, ErrBudgetExceeded
	}
	meta.ID = s.newID()
	meta.CreatedAt = s.now()
	s.items[meta.ID] = entry{meta: meta, data: append([]byte(nil), data...)}
	s.bytes += int64(len(data))
	return meta, nil
}

// Get returns the descriptor and bytes of id. The bytes must not be
// modified.
func (s *Store) Get(id string) (Artifact, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[id]
	if !ok {
		return Artifact{}, nil, false
	}
	return e.meta, e.data, true
}

// Release drops id. Releasing an unknown or empty id is a no-op.
func (s *Store) Release(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return false
	}
	delete(s.items, id)
	s.bytes -= int64(len(e.data))
	return true
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Bytes returns the total stored size.
func (s *Store) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}
