package memory

import (
	"sync"

	"coptic-quiz-service/internal/domain"
)

// DB holds every in-memory table behind one lock so cross-table checks such
// as "organization has no members" are atomic with the write that follows.
type DB struct {
	mu sync.RWMutex

	users     map[string]*domain.UserProfile
	userOrder []string
	orgs      map[string]*domain.Organization
	orgOrder  []string
	history   map[string][]domain.ActivityRecord

	profileChanges *notifier
	orgChanges     *notifier
}

func NewDB() *DB {
	return &DB{
		users:          make(map[string]*domain.UserProfile),
		orgs:           make(map[string]*domain.Organization),
		history:        make(map[string][]domain.ActivityRecord),
		profileChanges: newNotifier(),
		orgChanges:     newNotifier(),
	}
}

// notifier fans out change signals. Each watcher channel holds at most one
// pending signal; further changes coalesce into it.
type notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan struct{}]struct{})}
}

func (n *notifier) watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
