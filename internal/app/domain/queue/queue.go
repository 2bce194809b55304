// Package queue holds the named participant queues a session's chat users
// create and manipulate through bot commands.
package queue

import (
	"errors"
	"slices"
	"sort"
)

var (
	ErrEmptyName     = errors.New("queue name is empty")
	ErrExists        = errors.New("queue already exists")
	ErrNotFound      = errors.New("not a queue")
	ErrAlreadyJoined = errors.New("already in queue")
	ErrEmpty         = errors.New("queue is empty")
	ErrBadCount      = errors.New("count must be a positive integer")
)

type Queue struct {
	Name    string
	Creator string

	members map[string]struct{}
	order   []string
}

func (q *Queue) Len() int {
	return len(q.order)
}

// Entries returns a copy of the ordered identities.
func (q *Queue) Entries() []string {
	return slices.Clone(q.order)
}

func (q *Queue) Contains(identity string) bool {
	_, ok := q.members[identity]
	return ok
}

// Set is the per-session collection of queues. It is not safe for
// concurrent use; a session only touches it from its own read loop.
type Set struct {
	queues map[string]*Queue
}

func NewSet() *Set {
	return &Set{queues: make(map[string]*Queue)}
}

func (s *Set) Start(name, creator string) (*Queue, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if _, ok := s.queues[name]; ok {
		return nil, ErrExists
	}

	q := &Queue{
		Name:    name,
		Creator: creator,
		members: make(map[string]struct{}),
	}
	s.queues[name] = q
	return q, nil
}

func (s *Set) Get(name string) (*Queue, bool) {
	q, ok := s.queues[name]
	return q, ok
}

// Names returns queue names in lexical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Set) Len() int {
	return len(s.queues)
}

func (s *Set) Join(name, identity string) (int, error) {
	q, ok := s.queues[name]
	if !ok {
		return 0, ErrNotFound
	}
	if q.Contains(identity) {
		return 0, ErrAlreadyJoined
	}

	q.members[identity] = struct{}{}
	q.order = append(q.order, identity)
	return len(q.order), nil
}

// Pop removes up to count identities from the front of the queue. When the
// queue holds fewer than count entries every entry is returned; callers
// compare the result length against count to report the shortfall.
func (s *Set) Pop(name string, count int) ([]string, error) {
	if count < 1 {
		return nil, ErrBadCount
	}

	q, ok := s.queues[name]
	if !ok {
		return nil, ErrNotFound
	}
	if len(q.order) == 0 {
		return nil, ErrEmpty
	}

	n := min(count, len(q.order))
	popped := slices.Clone(q.order[:n])
	q.order = slices.Delete(q.order, 0, n)
	for _, identity := range popped {
		delete(q.members, identity)
	}

	return popped, nil
}
