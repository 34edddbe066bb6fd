// Package subscribe implements the per-subscriber category state machine.
package subscribe

import (
	"context"
	"fmt"
	"sync"

	"vestbot/internal/category"
	"vestbot/internal/store"
	logx "vestbot/pkg/logx"
)

// Engine toggles category subscriptions and keeps the derived "all" bit
// consistent: "all" is in the set iff every concrete catalog key is.
//
// Toggle is an atomic read-modify-write per identity. Inline-button taps
// can arrive in rapid succession; a keyed mutex serializes them so a late
// write never clobbers an earlier toggle.
type Engine struct {
	store   store.Store
	catalog *category.Catalog
	log     logx.Logger

	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	sync.Mutex
	refs int
}

func NewEngine(st store.Store, cat *category.Catalog, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:   st,
		catalog: cat,
		log:     log,
		locks:   make(map[string]*identityLock),
	}
}

// Toggle flips membership of category for identity and returns the updated
// set. The subscriber is created lazily on first use. Store failures are
// propagated, never swallowed.
func (e *Engine) Toggle(ctx context.Context, identity, cat string) ([]string, error) {
	if !e.catalog.Has(cat) {
		return nil, fmt.Errorf("unknown category %q", cat)
	}

	unlock := e.lockIdentity(identity)
	defer unlock()

	sub, ok, err := e.store.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
	if !ok {
		sub, err = e.store.Upsert(ctx, store.Subscriber{Identity: identity})
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}
	}

	next := applyToggle(sub.Categories, cat, e.catalog.Concrete())
	if err := e.store.UpdateCategories(ctx, identity, next); err != nil {
		return nil, fmt.Errorf("persist categories: %w", err)
	}

	e.log.Debug("subscription toggled",
		logx.String("identity", identity),
		logx.String("category", cat),
		logx.Strings("categories", next),
	)
	return next, nil
}

// Subscriptions returns the current set without mutating it.
func (e *Engine) Subscriptions(ctx context.Context, identity string) ([]string, error) {
	sub, ok, err := e.store.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return sub.Categories, nil
}

// Unsubscribe hard-deletes the subscriber record.
func (e *Engine) Unsubscribe(ctx context.Context, identity string) error {
	unlock := e.lockIdentity(identity)
	defer unlock()

	if err := e.store.Delete(ctx, identity); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	e.log.Info("subscriber removed", logx.String("identity", identity))
	return nil
}

// lockIdentity acquires the per-identity mutex. Lock entries are reference
// counted so the map does not grow with every subscriber ever seen.
func (e *Engine) lockIdentity(identity string) (unlock func()) {
	e.mu.Lock()
	l := e.locks[identity]
	if l == nil {
		l = &identityLock{}
		e.locks[identity] = l
	}
	l.refs++
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, identity)
		}
		e.mu.Unlock()
	}
}

// applyToggle is the pure state transition. It never produces duplicates
// and re-derives the "all" bit after every mutation.
func applyToggle(current []string, cat string, concrete []string) []string {
	if cat == category.All {
		if contains(current, category.All) {
			return []string{}
		}
		full := append([]string(nil), concrete...)
		return append(full, category.All)
	}

	var next []string
	if contains(current, cat) {
		// Removing a concrete key always breaks the "all" invariant too.
		for _, c := range current {
			if c == cat || c == category.All {
				continue
			}
			next = append(next, c)
		}
	} else {
		for _, c := range current {
			if c == category.All {
				continue
			}
			next = append(next, c)
		}
		next = append(next, cat)
		if containsAllOf(next, concrete) {
			next = append(next, category.All)
		}
	}
	if next == nil {
		next = []string{}
	}
	return dedupe(next)
}

func contains(set []string, key string) bool {
	for _, v := range set {
		if v == key {
			return true
		}
	}
	return false
}

func containsAllOf(set []string, keys []string) bool {
	for _, k := range keys {
		if !contains(set, k) {
			return false
		}
	}
	return true
}

func dedupe(set []string) []string {
	seen := make(map[string]bool, len(set))
	out := set[:0]
	for _, v := range set {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
