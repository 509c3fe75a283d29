// Package document keeps the uploaded documents queries run against and
// tracks which one is current.
package document

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// CharsPerPage is used to estimate a page count when none is given.
const CharsPerPage = 3000

// DefaultCacheSize bounds the number of documents kept.
const DefaultCacheSize = 16

// ErrEmptyDocument is returned when an upload carries no text.
var ErrEmptyDocument = errors.New("document has no text")

// ErrNotFound is returned when a document id is unknown.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return "document not found: " + e.ID
}

// Upload is a new document.
type Upload struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	PageCount int    `json:"page_count,omitempty"`
}

// Store is a bounded, in-memory document cache. The least recently used
// document is evicted first; evicting the current document clears the
// selection. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *models.Document]
	current string
}

// NewStore creates a store holding at most size documents.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	s := &Store{}
	// The callback runs inside cache calls made with s.mu held.
	cache, err := lru.NewWithEvict(size, func(id string, _ *models.Document) {
		if s.current == id {
			s.current = ""
		}
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// Upload adds a document and makes it current.
func (s *Store) Upload(u Upload) (*models.Document, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, ErrEmptyDocument
	}
	title := strings.TrimSpace(u.Title)
	if title == "" {
		title = "Untitled document"
	}
	pages := u.PageCount
	if pages <= 0 {
		pages = EstimatePages(u.Text)
	}

	doc := &models.Document{
		ID:         uuid.New().String(),
		Title:      title,
		Text:       u.Text,
		PageCount:  pages,
		UploadedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.cache.Add(doc.ID, doc)
	s.current = doc.ID
	s.mu.Unlock()

	log.Info().Str("document", doc.ID).Str("title", title).Int("pages", pages).Int("chars", len(u.Text)).Msg("document uploaded")
	return doc, nil
}

// EstimatePages returns ceil(len(text)/CharsPerPage), at least 1.
func EstimatePages(text string) int {
	n := (len(text) + CharsPerPage - 1) / CharsPerPage
	return max(n, 1)
}

// Get returns a document by id.
func (s *Store) Get(id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cache.Get(id)
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return doc, nil
}

// Select makes id the current document.
func (s *Store) Select(id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cache.Get(id)
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	s.current = id
	return doc, nil
}

// Remove deletes a document. Removing the current document clears the
// selection.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(id)
}

// List returns the documents most recently used first, without text.
func (s *Store) List() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.cache.Keys()
	out := make([]models.Document, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		doc, ok := s.cache.Peek(keys[i])
		if !ok {
			continue
		}
		d := *doc
		d.Text = ""
		out = append(out, d)
	}
	return out
}

// CurrentDocument returns the selected document, if any.
func (s *Store) CurrentDocument() (*models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil, false
	}
	return s.cache.Peek(s.current)
}

// Current returns a snapshot of the selected document. HasDocument is
// false when nothing is selected.
func (s *Store) Current() models.DocumentSnapshot {
	doc, ok := s.CurrentDocument()
	if !ok {
		return models.DocumentSnapshot{}
	}
	return Snapshot(doc)
}

// Snapshot converts a stored document into the read-only view the engine
// consumes.
func Snapshot(doc *models.Document) models.DocumentSnapshot {
	return models.DocumentSnapshot{
		Title:       doc.Title,
		Text:        doc.Text,
		PageCount:   doc.PageCount,
		HasDocument: true,
	}
}

// Static is a fixed document source, used by the CLI.
type Static models.DocumentSnapshot

// Current implements the document source contract.
func (s Static) Current() models.DocumentSnapshot { return models.DocumentSnapshot(s) }
