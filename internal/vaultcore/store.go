package vaultcore

import (
	"log/slog"
	"sync"
)

// Event is a coarse change-kind notification fired after a mutation
// settles. Listeners registered with On subscribe to one or more Events.
type Event int

const (
	EventMounts Event = iota
	EventRepos
	EventRemoteFiles
	EventRepoFiles
	EventRepoFilesBrowsers
	EventRepoFilesDetails
	EventTransfers
	EventDirPickers
	eventCount
)

func (e Event) String() string {
	switch e {
	case EventMounts:
		return "mounts"
	case EventRepos:
		return "repos"
	case EventRemoteFiles:
		return "remote_files"
	case EventRepoFiles:
		return "repo_files"
	case EventRepoFilesBrowsers:
		return "repo_files_browsers"
	case EventRepoFilesDetails:
		return "repo_files_details"
	case EventTransfers:
		return "transfers"
	case EventDirPickers:
		return "dir_pickers"
	default:
		return "unknown"
	}
}

// MutationState accumulates fine-grained facts observed during the user
// closure passed to Mutate, before mutation listeners (registered with
// MutationOn) drain it. This is the vehicle for cross-component
// consistency: e.g. Details observes RepoFiles moves here and rewrites its
// own location.
type MutationState struct {
	RemoteFiles RemoteFilesMutationState
	RepoFiles   RepoFilesMutationState
}

func (ms *MutationState) reset() {
	*ms = MutationState{}
}

// Notify queues an Event to be fired once, after the mutation closure
// returns and all mutation listeners have drained.
type Notify func(Event)

// MutationNotify is called by mutation-producing code to announce that a
// specific part of MutationState changed, both firing the coarse Event and
// invoking any MutationOn listeners for it during the same mutation pass.
type MutationNotify func(event Event, state *State, mutationState *MutationState)

// State is the single in-memory value the Store guards. It is composed of
// one sub-state per component, analogous to how a single-crate design
// aggregates remote_files::state, repos::state, etc. into one store::State.
// Because Go has no single-package multi-module aggregation that avoids
// import cycles here, every sub-state type lives in this same package (see
// remotefiles.go, repos.go, ...).
type State struct {
	Mounts             MountsState
	Repos              ReposState
	RemoteFiles        RemoteFilesState
	RepoFiles          RepoFilesState
	RepoFilesBrowsers  RepoFilesBrowsersState
	RepoFilesDetails   RepoFilesDetailsState
	Transfers          TransfersState
	DirPickers         DirPickersState
	nextID             uint32
}

func newState() State {
	return State{
		RemoteFiles:       newRemoteFilesState(),
		RepoFiles:         newRepoFilesState(),
		RepoFilesBrowsers: newRepoFilesBrowsersState(),
		RepoFilesDetails:  newRepoFilesDetailsState(),
		Transfers:         newTransfersState(),
		DirPickers:        newDirPickersState(),
	}
}

// listener is a registered callback for one or more Events, or for
// mutation-phase events (mutationEvents != nil).
type listener struct {
	id     uint32
	events map[Event]struct{}
	// cb fires after the mutation settles, with a read-locked snapshot
	// view available via Store.With from inside cb (re-entrant read is
	// safe because the write lock has already been released).
	cb func()
	// mutationCB fires during the mutation, before notification; it may
	// further mutate MutationState/State.
	mutationCB func(state *State, mutationState *MutationState)
}

// Store is the single-writer, multi-reader in-memory state container. All
// cross-component communication is mediated by the Store; no component
// holds direct references to another's internal state.
type Store struct {
	mu     sync.RWMutex
	state  State
	logger *slog.Logger

	listenersMu sync.Mutex
	listeners   map[uint32]*listener
	mutating    bool
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		state:     newState(),
		logger:    logger,
		listeners: make(map[uint32]*listener),
	}
}

// GetNextID mints a new monotonic id for browser/details/transfer/
// subscription ids. It never wraps within a session.
func (s *Store) GetNextID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.nextID++

	return s.state.nextID
}

// With provides shared read access to the current State. f must not call
// back into the Store (no Mutate/With/On from within f).
func (s *Store) With(f func(state *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f(&s.state)
}

// WithR is the generic-result variant of With.
func WithR[T any](s *Store, f func(state *State) T) T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return f(&s.state)
}

// Mutate performs the two-phase mutation pipeline:
//  1. f runs under the write lock, collecting Events via notify and facts
//     via the MutationState accumulator.
//  2. Each mutationNotify call made during f invokes that Event's mutation
//     listeners right away, in registration order, still under the lock;
//     they may cause further state changes and events.
//  3. The write lock is released.
//  4. Collected Events are each fired exactly once, in declaration order,
//     to listeners registered with On, in their registration order.
//
// f must be synchronous and must not block or call back into the Store.
func Mutate[T any](s *Store, f func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) T) T {
	s.mu.Lock()

	var mutationState MutationState
	mutationState.reset()

	pending := make(map[Event]struct{})

	notify := func(e Event) {
		pending[e] = struct{}{}
	}

	mutationNotify := func(e Event, state *State, ms *MutationState) {
		pending[e] = struct{}{}
		s.runMutationListeners(e, state, ms)
	}

	result := f(&s.state, notify, &mutationState, mutationNotify)

	events := make([]Event, 0, len(pending))
	for e := 0; e < int(eventCount); e++ {
		if _, ok := pending[Event(e)]; ok {
			events = append(events, Event(e))
		}
	}

	s.mu.Unlock()

	s.fireNotifications(events)

	return result
}

// runMutationListeners invokes, in registration order, every listener
// registered via MutationOn for e. Called while the write lock is held by
// Mutate, so callbacks here may further mutate state and notify.
func (s *Store) runMutationListeners(e Event, state *State, ms *MutationState) {
	s.listenersMu.Lock()
	cbs := make([]*listener, 0)

	for _, l := range s.orderedListeners() {
		if l.mutationCB == nil {
			continue
		}

		if _, ok := l.events[e]; ok {
			cbs = append(cbs, l)
		}
	}
	s.listenersMu.Unlock()

	for _, l := range cbs {
		l.mutationCB(state, ms)
	}
}

// fireNotifications invokes, for each fired Event in declaration order, every
// On listener subscribed to it, in registration order. Runs after the write
// lock has been released (step 4 of the pipeline).
func (s *Store) fireNotifications(events []Event) {
	for _, e := range events {
		s.listenersMu.Lock()
		cbs := make([]func(), 0)

		for _, l := range s.orderedListeners() {
			if l.cb == nil {
				continue
			}

			if _, ok := l.events[e]; ok {
				cbs = append(cbs, l.cb)
			}
		}
		s.listenersMu.Unlock()

		for _, cb := range cbs {
			cb()
		}
	}
}

// orderedListeners must be called with listenersMu held. Returns listeners
// ordered by id (= registration order, since ids are monotonic).
func (s *Store) orderedListeners() []*listener {
	ordered := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ordered = append(ordered, l)
	}

	sortListenersByID(ordered)

	return ordered
}

func sortListenersByID(ls []*listener) {
	for i := 1; i < len(ls); i++ {
		for j := i; j > 0 && ls[j-1].id > ls[j].id; j-- {
			ls[j-1], ls[j] = ls[j], ls[j-1]
		}
	}
}

func eventSet(events []Event) map[Event]struct{} {
	m := make(map[Event]struct{}, len(events))
	for _, e := range events {
		m[e] = struct{}{}
	}

	return m
}

// On registers a change listener on one or more Events. cb is invoked after
// a mutation settles and notifications fire, with no Store lock held. id
// should come from GetNextID so that RemoveListener can later find it.
func (s *Store) On(id uint32, events []Event, cb func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners[id] = &listener{id: id, events: eventSet(events), cb: cb}
}

// MutationOn registers a listener invoked during the mutation, before
// notifications fire, for the given mutation-carrying Events. The callback
// may mutate state and call mutationNotify further.
func (s *Store) MutationOn(id uint32, events []Event, cb func(state *State, mutationState *MutationState)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners[id] = &listener{id: id, events: eventSet(events), mutationCB: cb}
}

// RemoveListener unregisters a listener previously registered with On or
// MutationOn.
func (s *Store) RemoveListener(id uint32) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	delete(s.listeners, id)
}

func (s *Store) Logger() *slog.Logger {
	return s.logger
}
