// Package version tracks the immutable version history of prompts: strict
// monotonic semver per prompt id, content fingerprints, and parent lineage.
package version

import (
	"context"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/promptvault/promptvault/internal/core"
)

// Bump selects which semver component Record increments.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
)

// Version is one immutable history entry for a prompt.
type Version struct {
	PromptID  string       `json:"prompt_id"`
	Number    string       `json:"number"`
	Checksum  string       `json:"checksum"`
	Changelog string       `json:"changelog,omitempty"`
	Parent    string       `json:"parent,omitempty"` // previous version number, empty for the first
	Snapshot  *core.Prompt `json:"snapshot"`
	CreatedAt time.Time    `json:"created_at"`
}

// RecordOptions controls how Record assigns the new version number.
// Explicit, when set, wins over Bump and must exceed the current latest.
type RecordOptions struct {
	Bump      Bump
	Explicit  string
	Changelog string
}

// Store keeps per-prompt version histories in memory. Concurrent Record
// calls for the same prompt serialize on a per-id mutex so numbers stay
// strictly monotonic and lineage stays linear.
type Store struct {
	mu       sync.RWMutex
	locks    map[string]*sync.Mutex
	versions map[string][]*Version // oldest first
}

// NewStore returns an empty version store.
func NewStore() *Store {
	return &Store{
		locks:    make(map[string]*sync.Mutex),
		versions: make(map[string][]*Version),
	}
}

func (s *Store) lockFor(promptID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[promptID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[promptID] = l
	}
	return l
}

// Record appends a new version for the prompt. The first version is 1.0.0
// unless an explicit number is given. Content identical to the current
// latest is rejected with a *ConflictError; identical to an OLDER version is
// legitimate (a rollback re-recorded as a new version).
func (s *Store) Record(ctx context.Context, p *core.Prompt, opt RecordOptions) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	l := s.lockFor(p.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	history := s.versions[p.ID]
	s.mu.RUnlock()

	sum := Checksum(p)

	var latest *Version
	if len(history) > 0 {
		latest = history[len(history)-1]
		if latest.Checksum == sum {
			return nil, &ConflictError{PromptID: p.ID, Version: latest.Number, Checksum: sum}
		}
	}

	number, err := s.nextNumber(p.ID, latest, opt)
	if err != nil {
		return nil, err
	}

	v := &Version{
		PromptID:  p.ID,
		Number:    number,
		Checksum:  sum,
		Changelog: opt.Changelog,
		Snapshot:  p.Clone(),
		CreatedAt: time.Now().UTC(),
	}
	v.Snapshot.Version = number
	if latest != nil {
		v.Parent = latest.Number
	}

	s.mu.Lock()
	s.versions[p.ID] = append(s.versions[p.ID], v)
	s.mu.Unlock()

	return v, nil
}

func (s *Store) nextNumber(promptID string, latest *Version, opt RecordOptions) (string, error) {
	if opt.Explicit != "" {
		next, err := semver.StrictNewVersion(opt.Explicit)
		if err != nil {
			return "", &ConflictError{PromptID: promptID, Msg: "invalid version number " + opt.Explicit + ": " + err.Error()}
		}
		if latest != nil {
			cur := semver.MustParse(latest.Number)
			if !next.GreaterThan(cur) {
				return "", &ConflictError{PromptID: promptID, Msg: "version " + opt.Explicit + " is not greater than latest " + latest.Number}
			}
		}
		return next.String(), nil
	}

	if latest == nil {
		return "1.0.0", nil
	}

	cur := semver.MustParse(latest.Number)
	var next semver.Version
	switch opt.Bump {
	case BumpMajor:
		next = cur.IncMajor()
	case BumpMinor:
		next = cur.IncMinor()
	default:
		next = cur.IncPatch()
	}
	return next.String(), nil
}

// Adopt restores a persisted version into the history without assigning a
// new number. The snapshot's own Version field is used and must be strictly
// greater than the current latest; adopters feed versions oldest first.
func (s *Store) Adopt(p *core.Prompt) (*Version, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	number, err := semver.StrictNewVersion(p.Version)
	if err != nil {
		return nil, &ConflictError{PromptID: p.ID, Msg: "invalid version number " + p.Version + ": " + err.Error()}
	}

	l := s.lockFor(p.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	history := s.versions[p.ID]
	s.mu.RUnlock()

	var latest *Version
	if len(history) > 0 {
		latest = history[len(history)-1]
		if !number.GreaterThan(semver.MustParse(latest.Number)) {
			return nil, &ConflictError{PromptID: p.ID, Msg: "version " + p.Version + " is not greater than latest " + latest.Number}
		}
	}

	created := p.UpdatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	v := &Version{
		PromptID:  p.ID,
		Number:    number.String(),
		Checksum:  Checksum(p),
		Snapshot:  p.Clone(),
		CreatedAt: created,
	}
	if latest != nil {
		v.Parent = latest.Number
	}

	s.mu.Lock()
	s.versions[p.ID] = append(s.versions[p.ID], v)
	s.mu.Unlock()

	return v, nil
}

// Get returns one recorded version.
func (s *Store) Get(promptID, number string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.versions[promptID]
	if !ok {
		return nil, &NotFoundError{PromptID: promptID}
	}
	for _, v := range history {
		if v.Number == number {
			return v, nil
		}
	}
	return nil, &NotFoundError{PromptID: promptID, Version: number}
}

// Latest returns the most recently recorded version.
func (s *Store) Latest(promptID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[promptID]
	if len(history) == 0 {
		return nil, &NotFoundError{PromptID: promptID}
	}
	return history[len(history)-1], nil
}

// History returns every recorded version, oldest first. The returned slice
// is a copy; the entries are shared and must be treated as immutable.
func (s *Store) History(promptID string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.versions[promptID]
	if !ok {
		return nil, &NotFoundError{PromptID: promptID}
	}
	return append([]*Version(nil), history...), nil
}
