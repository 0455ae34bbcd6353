package itemview

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/model"
)

// SessionStore holds the open forms of every user. Forms expire after a
// period without access; when the store is full the form closest to
// expiry is dropped.
type SessionStore struct {
	mu      sync.Mutex
	forms   map[string]*session
	ttl     time.Duration
	max     int
	now     func() time.Time
	metrics *observability.Metrics
}

type session struct {
	form    *Form
	expires time.Time
	pagers  map[string]*relationship.Pager
}

// NewSessionStore creates a store with the configured limits.
func NewSessionStore(cfg config.FormsConfig, metrics *observability.Metrics) *SessionStore {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = config.Defaults().Forms.SessionTTL
	}
	return &SessionStore{
		forms:   make(map[string]*session),
		ttl:     cfg.SessionTTL,
		max:     cfg.MaxSessions,
		now:     time.Now,
		metrics: metrics,
	}
}

// Open stores f under a new id and returns the stored copy.
func (s *SessionStore) Open(f *Form) *Form {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if s.max > 0 && len(s.forms) >= s.max {
		s.evictOne()
	}

	stored := f.clone()
	stored.ID = uuid.NewString()
	stored.Generation = 1
	s.forms[stored.ID] = &session{form: stored, expires: now.Add(s.ttl), pagers: map[string]*relationship.Pager{}}
	s.metrics.SetFormSessions(len(s.forms))
	return stored.clone()
}

// Get returns a copy of the form with id owned by owner.
func (s *SessionStore) Get(owner, id string) (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	sess.expires = s.now().Add(s.ttl)
	return sess.form.clone(), nil
}

// Commit replaces the stored form with f. It fails with FORM_SUPERSEDED
// when the form was changed or discarded after f was read.
func (s *SessionStore) Commit(f *Form) (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.forms[f.ID]
	if !ok || sess.form.Owner != f.Owner || sess.form.Generation != f.Generation {
		return nil, model.NewFormSupersededError()
	}
	stored := f.clone()
	stored.Generation++
	sess.form = stored
	sess.expires = s.now().Add(s.ttl)
	return stored.clone(), nil
}

// Discard removes the form with id.
func (s *SessionStore) Discard(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(owner, id); err != nil {
		return err
	}
	delete(s.forms, id)
	s.metrics.SetFormSessions(len(s.forms))
	return nil
}

// Pager returns the option pager of one relationship field of a form,
// creating it with create on first use. Pagers live as long as the form
// and do not change its generation.
func (s *SessionStore) Pager(owner, id, path string, create func() *relationship.Pager) (*relationship.Pager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	p, ok := sess.pagers[path]
	if !ok {
		p = create()
		sess.pagers[path] = p
	}
	return p, nil
}

// Len returns the number of stored forms, including expired ones not yet
// swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

func (s *SessionStore) lookup(owner, id string) (*session, error) {
	sess, ok := s.forms[id]
	if !ok || sess.form.Owner != owner {
		return nil, model.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	if !s.now().Before(sess.expires) {
		delete(s.forms, id)
		s.metrics.SetFormSessions(len(s.forms))
		return nil, model.NewNotFoundError(fmt.Sprintf("form %q expired", id))
	}
	return sess, nil
}

func (s *SessionStore) sweep(now time.Time) {
	for id, sess := range s.forms {
		if !now.Before(sess.expires) {
			delete(s.forms, id)
		}
	}
}

func (s *SessionStore) evictOne() {
	var victim string
	var earliest time.Time
	for id, sess := range s.forms {
		if victim == "" || sess.expires.Before(earliest) {
			victim, earliest = id, sess.expires
		}
	}
	delete(s.forms, victim)
}
