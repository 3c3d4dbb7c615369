package engine

import (
	"sync"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
)

// documentStore is the engine's view of the editor: snapshots, cursors,
// visible ranges, and diagnostics fed in through the Engine API. It
// implements editor.Session for the orchestrator.
type documentStore struct {
	mu      sync.RWMutex
	docs    map[string]editor.Document
	cursors map[string]editor.Position
	visible map[string]editor.LineRange
	diags   map[string][]editor.Diagnostic
}

func newDocumentStore() *documentStore {
	return &documentStore{
		docs:    make(map[string]editor.Document),
		cursors: make(map[string]editor.Position),
		visible: make(map[string]editor.LineRange),
		diags:   make(map[string][]editor.Diagnostic),
	}
}

func (s *documentStore) Document(path string) (editor.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path]
	return d, ok
}

func (s *documentStore) Cursor(path string) (editor.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[path]
	return c, ok
}

func (s *documentStore) VisibleRange(path string) (editor.LineRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.visible[path]
	return r, ok
}

func (s *documentStore) Diagnostics(path string) []editor.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diags[path]
}

func (s *documentStore) put(doc editor.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Path] = doc
}

func (s *documentStore) setCursor(path string, pos editor.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[path] = pos
}

func (s *documentStore) setVisible(path string, r editor.LineRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[path] = r
}

func (s *documentStore) setDiagnostics(path string, diags []editor.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags[path] = diags
}

func (s *documentStore) drop(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	delete(s.cursors, path)
	delete(s.visible, path)
	delete(s.diags, path)
}
