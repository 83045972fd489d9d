package config

import (
	"sort"
	"sync"
)

// ChangeType is the kind of configuration change
type ChangeType int

const (
	// ChangeSet is an in-process update of one or more sections
	ChangeSet ChangeType = iota
	// ChangeReload is a re-read of the config file
	ChangeReload
)

func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one configuration change. Old and New are snapshots.
type Change struct {
	Type     ChangeType
	Sections []string // top-level tables that differ, e.g. "ai", "merge"
	Old      Config
	New      Config
	Source   string
}

// Touches reports whether the change affects section
func (c Change) Touches(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Observer is called on each change
type Observer func(change Change)

// Subscription is an active observer registration
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Notifier fans configuration changes out to observers, synchronously and
// outside its lock.
type Notifier struct {
	mu        sync.RWMutex
	global    map[uint64]Observer
	bySection map[string]map[uint64]Observer
	nextID    uint64
}

func NewNotifier() *Notifier {
	return &Notifier{
		global:    make(map[uint64]Observer),
		bySection: make(map[string]map[uint64]Observer),
	}
}

// Subscribe registers an observer for every change
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.global[id] = observer
	return &Subscription{id: id, notifier: n}
}

// SubscribeSection registers an observer for changes touching one section
func (n *Notifier) SubscribeSection(section string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	if n.bySection[section] == nil {
		n.bySection[section] = make(map[uint64]Observer)
	}
	n.bySection[section][id] = observer
	return &Subscription{id: id, notifier: n}
}

// Notify delivers change to every matching observer, in subscription order
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	matched := make(map[uint64]Observer)
	for id, obs := range n.global {
		matched[id] = obs
	}
	for _, section := range change.Sections {
		for id, obs := range n.bySection[section] {
			matched[id] = obs
		}
	}
	n.mu.RUnlock()

	ids := make([]uint64, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		matched[id](change)
	}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.global, id)
	for section, observers := range n.bySection {
		delete(observers, id)
		if len(observers) == 0 {
			delete(n.bySection, section)
		}
	}
}
