package domain

import "sync"

// Hooks is a registry of synchronous extension points. Callbacks run on
// the goroutine that fires them, in registration order, at three
// well-defined moments: after an event is stored, after a key is
// generated, and when an aggregator name outside the built-in allow-list
// is checked.
type Hooks struct {
	mu           sync.RWMutex
	eventStored  []func(SyndicationEvent)
	keyGenerated []func(SiteKey)
	aggregatorOK []func(string) bool
}

// NewHooks returns an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnEventStored registers a callback invoked after every successful
// event insert.
func (h *Hooks) OnEventStored(fn func(SyndicationEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventStored = append(h.eventStored, fn)
}

// OnKeyGenerated registers a callback invoked after every key issuance.
func (h *Hooks) OnKeyGenerated(fn func(SiteKey)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keyGenerated = append(h.keyGenerated, fn)
}

// ExtendAggregators registers a predicate that may admit aggregator
// names beyond the built-in allow-list.
func (h *Hooks) ExtendAggregators(fn func(name string) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aggregatorOK = append(h.aggregatorOK, fn)
}

// FireEventStored invokes all post-store callbacks.
func (h *Hooks) FireEventStored(event SyndicationEvent) {
	h.mu.RLock()
	fns := h.eventStored
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(event)
	}
}

// FireKeyGenerated invokes all post-generation callbacks.
func (h *Hooks) FireKeyGenerated(key SiteKey) {
	h.mu.RLock()
	fns := h.keyGenerated
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(key)
	}
}

// AggregatorAllowed reports whether any registered predicate admits the
// given aggregator name.
func (h *Hooks) AggregatorAllowed(name string) bool {
	h.mu.RLock()
	fns := h.aggregatorOK
	h.mu.RUnlock()
	for _, fn := range fns {
		if fn(name) {
			return true
		}
	}
	return false
}
