package config

import "sync"

// Provider is what engine components consume: a snapshot accessor plus
// change notifications.
type Provider interface {
	// Settings returns the current settings snapshot.
	Settings() Settings

	// Subscribe registers an observer called on every settings change.
	// The returned function removes the subscription.
	Subscribe(observer func(Settings)) (unsubscribe func())
}

// Store holds the live settings and notifies subscribers on change.
// It implements Provider.
type Store struct {
	mu        sync.RWMutex
	settings  Settings
	observers map[uint64]func(Settings)
	nextID    uint64
}

// NewStore creates a Store seeded with the given settings.
func NewStore(s Settings) *Store {
	return &Store{
		settings:  s,
		observers: make(map[uint64]func(Settings)),
	}
}

// Settings returns the current settings snapshot.
func (st *Store) Settings() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings
}

// Subscribe registers an observer called on every settings change.
func (st *Store) Subscribe(observer func(Settings)) func() {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.observers[id] = observer
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.observers, id)
		st.mu.Unlock()
	}
}

// Replace swaps in a whole new settings snapshot and notifies subscribers.
func (st *Store) Replace(s Settings) {
	st.mu.Lock()
	st.settings = s
	observers := make([]func(Settings), 0, len(st.observers))
	for _, o := range st.observers {
		observers = append(observers, o)
	}
	st.mu.Unlock()

	// Notify outside the lock so observers may re-read the store.
	for _, o := range observers {
		o(s)
	}
}

// Update applies a mutation to a copy of the current settings and publishes
// the result. Used for server-pushed tunables.
func (st *Store) Update(mutate func(*Settings)) {
	st.mu.Lock()
	s := st.settings
	mutate(&s)
	st.settings = s
	observers := make([]func(Settings), 0, len(st.observers))
	for _, o := range st.observers {
		observers = append(observers, o)
	}
	st.mu.Unlock()

	for _, o := range observers {
		o(s)
	}
}
