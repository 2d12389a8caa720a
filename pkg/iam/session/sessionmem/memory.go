package sessionmem

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
)

// Store keeps session documents in a map. Expired documents are dropped on read.
type Store struct {
	mu   sync.RWMutex
	docs map[string]entry
}

type entry struct {
	doc       session.Document
	expiresAt time.Time
}

func NewStore() *Store {
	return &Store{docs: make(map[string]entry)}
}

// NewProvider returns a session manager backed by a fresh in-memory store.
func NewProvider(codec *session.TokenCodec, users core.UserReader) *session.Manager {
	return session.NewManager(NewStore(), codec, users)
}

func (s *Store) Put(_ context.Context, doc *session.Document, ttl time.Duration) error {
	cp := *doc
	cp.Claims = make(map[string]any, len(doc.Claims))
	for k, v := range doc.Claims {
		cp.Claims[k] = v
	}

	s.mu.Lock()
	s.docs[doc.Handle] = entry{doc: cp, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, handle string) (*session.Document, error) {
	s.mu.RLock()
	e, ok := s.docs[handle]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil
	}

	doc := e.doc
	doc.Claims = make(map[string]any, len(e.doc.Claims))
	for k, v := range e.doc.Claims {
		doc.Claims[k] = v
	}
	return &doc, nil
}

func (s *Store) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	delete(s.docs, handle)
	s.mu.Unlock()
	return nil
}
