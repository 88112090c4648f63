// Package session keeps the pieces open for editing. Each piece lives in a
// Session guarded by its own mutex, so one top-level edit is atomic per
// piece while different pieces are edited concurrently. Materialized
// version views are cached per piece and dropped after every edit.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/internal/cache"
	"github.com/FocuswithJustin/Mensura/internal/logging"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
)

// newID generates session IDs; tests replace it.
var newID = func() string { return uuid.New().String() }

// Session is one open piece.
type Session struct {
	id        string
	name      string
	createdAt time.Time

	mu       sync.Mutex
	piece    *music.Piece
	revision int
}

// Info summarizes a session.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Composer  string `json:"composer,omitempty"`
	Voices    int    `json:"voices"`
	Sections  int    `json:"sections"`
	Versions  int    `json:"versions"`
	Markers   int    `json:"markers"`
	Revision  int    `json:"revision"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at"`
}

// Change describes an edit, for listeners registered with OnChange.
type Change struct {
	Type     string `json:"type"`
	PieceID  string `json:"piece_id"`
	Op       string `json:"op,omitempty"`
	Result   string `json:"result,omitempty"`
	Revision int    `json:"revision"`
}

// Change types.
const (
	ChangeOpened = "opened"
	ChangeEdited = "edited"
	ChangeClosed = "closed"
)

type viewKey struct {
	piece   string
	version string
}

// Workspace holds the open sessions.
type Workspace struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	views     *cache.TTLCache[viewKey, *music.Piece]
	listeners []func(Change)
}

// NewWorkspace creates an empty workspace whose version views expire after
// viewTTL.
func NewWorkspace(viewTTL time.Duration) *Workspace {
	return &Workspace{
		sessions: make(map[string]*Session),
		views:    cache.New[viewKey, *music.Piece](viewTTL),
	}
}

// OnChange registers fn to be called after every open, edit and close.
// fn runs synchronously and must not call back into the workspace for the
// same piece.
func (w *Workspace) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Workspace) notify(c Change) {
	w.mu.RLock()
	listeners := slices.Clone(w.listeners)
	w.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Create opens p in a new session.
func (w *Workspace) Create(name string, p *music.Piece) (Info, error) {
	if p == nil {
		return Info{}, errors.NewValidation("piece", "must not be nil")
	}
	if p.Materialized() {
		return Info{}, errors.NewValidation("piece", "cannot edit a materialized version")
	}
	if errs := p.Validate(); len(errs) > 0 {
		return Info{}, errors.Wrap(errors.Join(errs...), "invalid piece")
	}
	s := &Session{
		id:        newID(),
		name:      name,
		createdAt: time.Now().UTC(),
		piece:     p,
	}
	w.mu.Lock()
	w.sessions[s.id] = s
	w.mu.Unlock()

	logging.SessionEvent(ChangeOpened, s.id, "name", name, "title", p.Meta.Title)
	w.notify(Change{Type: ChangeOpened, PieceID: s.id})
	return s.info(), nil
}

// Open loads the piece file at path into a new session.
func (w *Workspace) Open(path string) (Info, error) {
	p, err := pieceio.Load(path)
	if err != nil {
		return Info{}, err
	}
	return w.Create(path, p)
}

// Get returns the session with the given ID.
func (w *Workspace) Get(id string) (*Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	return s, nil
}

// Info returns a summary of the session.
func (w *Workspace) Info(id string) (Info, error) {
	s, err := w.Get(id)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// List summarizes every session, oldest first.
func (w *Workspace) List() []Info {
	w.mu.RLock()
	sessions := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		if a.id < b.id {
			return -1
		}
		return 1
	})
	out := make([]Info, len(sessions))
	for i, s := range sessions {
		s.mu.Lock()
		out[i] = s.info()
		s.mu.Unlock()
	}
	return out
}

// Close discards the session and its cached views.
func (w *Workspace) Close(id string) error {
	w.mu.Lock()
	_, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()
	if !ok {
		return errors.NewNotFound("session", id)
	}
	w.dropViews(id)
	logging.SessionEvent(ChangeClosed, id)
	w.notify(Change{Type: ChangeClosed, PieceID: id})
	return nil
}

// Len returns the number of open sessions.
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// Read runs fn with the session's piece under the session lock. fn must not
// keep references to the piece.
func (w *Workspace) Read(id string, fn func(p *music.Piece) error) error {
	s, err := w.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.piece)
}

// View runs fn with the materialized view of versionID under the session
// lock. Views share events with the piece, so fn must not keep references.
func (w *Workspace) View(id, versionID string, fn func(view *music.Piece) error) error {
	s, err := w.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := w.view(s, versionID)
	if err != nil {
		return err
	}
	return fn(view)
}

// view returns the cached view of versionID; the caller holds s.mu.
func (w *Workspace) view(s *Session, versionID string) (*music.Piece, error) {
	return w.views.GetOrLoad(viewKey{s.id, versionID}, func() (*music.Piece, error) {
		return s.piece.Materialize(versionID)
	})
}

// Export renders the session's piece in format f. Writing consolidates the
// apparatus; when that changes the piece the revision advances and
// listeners see a consolidate_all edit.
func (w *Workspace) Export(id string, f pieceio.Format) ([]byte, error) {
	var data []byte
	err := w.write(id, func(p *music.Piece) error {
		var err error
		data, err = pieceio.Marshal(f, p)
		return err
	})
	return data, err
}

// Save writes the session's piece to path, consolidating it as Export does.
func (w *Workspace) Save(id, path string) error {
	return w.write(id, func(p *music.Piece) error {
		return pieceio.Save(path, p)
	})
}

func (w *Workspace) write(id string, fn func(p *music.Piece) error) error {
	s, err := w.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	n := s.piece.ConsolidateAllReadings()
	if n > 0 {
		s.revision++
		w.dropViews(s.id)
	}
	rev := s.revision
	err = fn(s.piece)
	s.mu.Unlock()

	if n > 0 {
		logging.SessionEvent(ChangeEdited, id, "op", OpConsolidateAll, "markers", n, "revision", rev)
		w.notify(Change{Type: ChangeEdited, PieceID: id, Op: OpConsolidateAll, Result: music.Applied.String(), Revision: rev})
	}
	return err
}

func (w *Workspace) dropViews(id string) int {
	return w.views.DeleteFunc(func(k viewKey) bool { return k.piece == id })
}

// info summarizes the session; the caller holds s.mu.
func (s *Session) info() Info {
	return Info{
		ID:        s.id,
		Name:      s.name,
		Title:     s.piece.Meta.Title,
		Composer:  s.piece.Meta.Composer,
		Voices:    s.piece.NumVoices(),
		Sections:  s.piece.NumSections(),
		Versions:  len(s.piece.Versions()),
		Markers:   len(s.piece.Markers()),
		Revision:  s.revision,
		Digest:    s.piece.Digest(),
		CreatedAt: s.createdAt.Format(time.RFC3339),
	}
}
