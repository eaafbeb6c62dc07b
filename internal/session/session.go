package session

import "sync"

// Stage is where a user currently is in the guided dialogue. Profile
// creation walks the stages in order; nothing is persisted until the
// media step completes.
type Stage int

const (
	StageUnstarted Stage = iota
	StageName
	StageAge
	StageBio
	StageMedia
	StageLocation
	StageBrowsing
)

func (s Stage) String() string {
	switch s {
	case StageUnstarted:
		return "unstarted"
	case StageName:
		return "collecting_name"
	case StageAge:
		return "collecting_age"
	case StageBio:
		return "collecting_bio"
	case StageMedia:
		return "collecting_media"
	case StageLocation:
		return "collecting_location"
	case StageBrowsing:
		return "browsing"
	default:
		return "unknown"
	}
}

// Draft holds the creation fields collected so far. It only exists in the
// session; the profile row is written once media arrives.
type Draft struct {
	Name string
	Age  int
	Bio  string
}

// Session is the ephemeral per-user conversation state. MatchedUserID is a
// single slot: a newer match overwrites it and a relayed message clears it.
type Session struct {
	Started bool
	Stage   Stage
	Draft   Draft

	// Transient edit flags, cleared after one successful edit.
	EditingMedia bool
	EditingBio   bool

	// Profile currently displayed to this viewer, for interpreting the
	// next like/dislike. Zero when nothing is on screen.
	ShownProfileID int64

	MatchedUserID int64
}

// Store keeps sessions in memory keyed by user ID. Access to one user's
// session is serialized by a per-user mutex so overlapping events from the
// transport cannot lose updates. A session that returns to the zero state
// is dropped from the map, so the store does not grow with every sender
// ever seen.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	mu      sync.Mutex
	dead    bool
	session Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (s *Store) entry(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{}
		s.sessions[userID] = e
	}
	return e
}

// acquire returns the user's entry with its lock held, retrying past
// entries evicted between lookup and lock.
func (s *Store) acquire(userID int64) *entry {
	for {
		e := s.entry(userID)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// evict drops the entry from the map and marks it dead so blocked
// acquirers retry against a fresh one. Caller holds e.mu.
func (s *Store) evict(userID int64, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == e {
		delete(s.sessions, userID)
	}
	e.dead = true
}

// WithSession runs fn while holding the user's session lock. fn may mutate
// the session in place; the mutation is visible to the next caller. fn
// must not acquire another user's session through this store.
func (s *Store) WithSession(userID int64, fn func(*Session) error) error {
	e := s.acquire(userID)
	err := fn(&e.session)
	if e.session == (Session{}) {
		s.evict(userID, e)
	}
	e.mu.Unlock()
	return err
}

// Peek returns a copy of the user's session.
func (s *Store) Peek(userID int64) Session {
	e := s.acquire(userID)
	defer e.mu.Unlock()
	return e.session
}

// SetMatched fills the user's active-match slot, overwriting any previous
// match. The caller must not hold any session lock: counterpart updates
// are applied after the event's own session section has ended.
func (s *Store) SetMatched(userID, matchedUserID int64) {
	e := s.acquire(userID)
	defer e.mu.Unlock()
	e.session.MatchedUserID = matchedUserID
}

// Reset drops the user's session entirely; the next event starts from the
// unstarted zero state.
func (s *Store) Reset(userID int64) {
	e := s.acquire(userID)
	s.evict(userID, e)
	e.mu.Unlock()
}
