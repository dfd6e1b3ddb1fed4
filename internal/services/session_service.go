// internal/services/session_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/ui"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Session is the dashboard state of one visitor: the prompt form, the
// story generated last, the story open in the library and a paginator for
// each story.
type Session struct {
	ID string

	mutex        sync.Mutex
	form         *ui.PromptForm
	generating   bool
	current      *models.StoryView
	pager        *ui.Paginator
	libraryStory *models.StoryView
	libraryPager *ui.Paginator
}

// SessionSnapshot is a copy of a session for rendering. CanSubmit only
// tracks a running generation: the stored form lags what the visitor types,
// so invalid input is rejected on submit instead.
type SessionSnapshot struct {
	ID         string
	Form       ui.PromptForm
	CanSubmit  bool
	Generating bool

	Current         *models.StoryView
	CurrentEpisode  *models.Episode
	CurrentPosition ui.Position
	CanStep         bool

	Library         *models.StoryView
	LibraryEpisode  *models.Episode
	LibraryPosition ui.Position
	LibraryCanStep  bool
}

func newSession(id string) *Session {
	return &Session{
		ID:           id,
		form:         ui.NewPromptForm(),
		pager:        ui.NewPaginator(0),
		libraryPager: ui.NewPaginator(0),
	}
}

// UpdateForm replaces the form contents
func (s *Session) UpdateForm(form ui.PromptForm) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	*s.form = form
}

// StepForm applies a stepper action to the form
func (s *Session) StepForm(action string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.form.Step(action)
}

// Form returns a copy of the form
func (s *Session) Form() ui.PromptForm {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return *s.form
}

// BeginGeneration flags the session as generating. It returns false if a
// generation is already running.
func (s *Session) BeginGeneration() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.generating {
		return false
	}
	s.generating = true
	return true
}

// FinishGeneration shows view on the dashboard from its first episode. A
// nil view only clears the generating flag.
func (s *Session) FinishGeneration(view *models.StoryView) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.generating = false
	if view != nil {
		s.current = view
		s.pager.Reset(len(view.Episodes))
	}
}

// Generating reports whether a generation is running
func (s *Session) Generating() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.generating
}

// OpenLibraryStory shows view in the library reader. The paginator goes
// back to the first episode when restart is set or a different story is
// opened.
func (s *Session) OpenLibraryStory(view *models.StoryView, restart bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !restart && s.libraryStory != nil && s.libraryStory.StoryID == view.StoryID &&
		s.libraryPager.Count() == len(view.Episodes) {
		s.libraryStory = view
		return
	}
	s.libraryStory = view
	s.libraryPager.Reset(len(view.Episodes))
}

// CloseLibraryStory returns the library to the story list
func (s *Session) CloseLibraryStory() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.libraryStory = nil
	s.libraryPager.Reset(0)
}

// Pager returns the dashboard paginator
func (s *Session) Pager() *ui.Paginator {
	return s.pager
}

// LibraryPager returns the library paginator
func (s *Session) LibraryPager() *ui.Paginator {
	return s.libraryPager
}

// LibraryStoryID returns the id of the open library story, 0 if none
func (s *Session) LibraryStoryID() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.libraryStory == nil {
		return 0
	}
	return s.libraryStory.StoryID
}

// Snapshot copies the session state
func (s *Session) Snapshot() SessionSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := SessionSnapshot{
		ID:         s.ID,
		Form:       *s.form,
		CanSubmit:  !s.generating,
		Generating: s.generating,
		Current:    s.current,
		Library:    s.libraryStory,
	}
	if s.current != nil {
		snap.CurrentEpisode = episodeAt(s.current, s.pager.Current())
		snap.CurrentPosition = s.pager.Position()
		snap.CanStep = s.pager.CanStep()
	}
	if s.libraryStory != nil {
		snap.LibraryEpisode = episodeAt(s.libraryStory, s.libraryPager.Current())
		snap.LibraryPosition = s.libraryPager.Position()
		snap.LibraryCanStep = s.libraryPager.CanStep()
	}
	return snap
}

func episodeAt(view *models.StoryView, i int) *models.Episode {
	if i < 0 || i >= len(view.Episodes) {
		return nil
	}
	ep := view.Episodes[i]
	return &ep
}

// StepPaginator applies a paginator action. index is only used by jump.
// Stepping is skipped when the paginator cannot step.
func StepPaginator(p *ui.Paginator, action string, index int) bool {
	switch action {
	case "next":
		if !p.CanStep() {
			return false
		}
		p.Next()
	case "prev":
		if !p.CanStep() {
			return false
		}
		p.Previous()
	case "jump":
		return p.JumpTo(index)
	default:
		return false
	}
	return true
}

// SessionService stores sessions in memory with a sliding expiration
type SessionService struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewSessionService creates a store whose sessions expire after ttl
// without a visit
func NewSessionService(ttl time.Duration) *SessionService {
	return &SessionService{
		store: cache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

// Get returns the session with id and renews its expiration
func (s *SessionService) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	s.store.Set(id, sess, cache.DefaultExpiration)
	return sess, true
}

// Resolve returns the session with id, or a new session when id is
// unknown. created reports whether a new session was made.
func (s *SessionService) Resolve(id string) (sess *Session, created bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}

	for {
		sess = newSession(uuid.NewString())
		if err := s.store.Add(sess.ID, sess, cache.DefaultExpiration); err == nil {
			return sess, true
		}
	}
}

// Count returns the number of live sessions
func (s *SessionService) Count() int {
	return s.store.ItemCount()
}

// TTL returns the idle expiration
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}
