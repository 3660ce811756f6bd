// Package mutation applies local list edits optimistically and batches
// them into debounced writes against the list service. Rapid edits to the
// same list coalesce into a single write carrying the final state; a
// failed write rolls the list back to the last acknowledged server state.
package mutation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/magnusoverli/sushe-online-sub002/internal/identity"
	"github.com/magnusoverli/sushe-online-sub002/internal/liststore"
	"github.com/magnusoverli/sushe-online-sub002/internal/model"
	"github.com/magnusoverli/sushe-online-sub002/internal/snapshot"
)

// Writer is the slice of the list-service client the pipeline needs.
type Writer interface {
	Reorder(ctx context.Context, listID string, order []string) error
	Update(ctx context.Context, listID string, upd model.IncrementalUpdate) (model.UpdateResult, error)
}

const (
	defaultReorderDelay = 300 * time.Millisecond
	// Discrete adds/removes/edits are near-immediate; the tiny window only
	// exists so a burst of keystrokes lands as one write.
	defaultEditDelay = 20 * time.Millisecond
)

type Option func(*Pipeline)

func WithReorderDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.reorderDelay = d }
}

func WithEditDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.editDelay = d }
}

// WithNotifier installs the user-visible failure notice. The pipeline
// never retries on its own.
func WithNotifier(f func(listID string, err error)) Option {
	return func(p *Pipeline) { p.notify = f }
}

// pending accumulates one list's not-yet-sent batch. At most one timer and
// one in-flight write exist per list at a time.
type pending struct {
	timer *time.Timer

	dirtyOrder bool
	added      []model.Entry
	removed    []string
	edits      map[string]*model.FieldUpdate
	editOrder  []string
	alias      map[string]string // current identity -> identity the server knows

	baseline    []model.Entry // rollback point: last acknowledged state
	baselineSet bool

	inflight bool
	queued   bool
}

type batch struct {
	dirtyOrder bool
	upd        model.IncrementalUpdate
	baseline   []model.Entry
}

func (pd *pending) empty() bool {
	return !pd.dirtyOrder && len(pd.added) == 0 && len(pd.removed) == 0 && len(pd.edits) == 0
}

func (pd *pending) take() batch {
	b := batch{dirtyOrder: pd.dirtyOrder, baseline: pd.baseline}
	b.upd.Added = pd.added
	b.upd.Removed = pd.removed
	for _, id := range pd.editOrder {
		b.upd.Updated = append(b.upd.Updated, *pd.edits[id])
	}
	pd.dirtyOrder = false
	pd.added = nil
	pd.removed = nil
	pd.edits = nil
	pd.editOrder = nil
	pd.alias = nil
	pd.baseline = nil
	pd.baselineSet = false
	return b
}

// Pipeline owns every local mutation of the list store. The push channel
// is the only other writer of list items.
type Pipeline struct {
	store  *liststore.Store
	snaps  *snapshot.Tracker
	writer Writer
	notify func(listID string, err error)

	reorderDelay time.Duration
	editDelay    time.Duration

	mu      sync.Mutex
	pending map[string]*pending
}

func New(store *liststore.Store, snaps *snapshot.Tracker, writer Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		snaps:        snaps,
		writer:       writer,
		notify:       func(string, error) {},
		reorderDelay: defaultReorderDelay,
		editDelay:    defaultEditDelay,
		pending:      make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reorder moves the entry at from to position to, optimistically, and
// schedules a debounced reorder write. from == to is a pure no-op: no
// state change and no network write.
func (p *Pipeline) Reorder(listID string, from, to int) error {
	if from == to {
		return nil
	}
	items, ok := p.store.Items(listID)
	if !ok {
		return fmt.Errorf("list %s: items not loaded", listID)
	}
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return fmt.Errorf("list %s: move %d -> %d out of range (%d entries)", listID, from, to, len(items))
	}

	p.mu.Lock()
	pd := p.ensure(listID, items)
	moved := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items[:to], append([]model.Entry{moved}, items[to:]...)...)
	p.store.SetItems(listID, items)
	pd.dirtyOrder = true
	p.schedule(listID, pd, p.reorderDelay)
	p.mu.Unlock()
	return nil
}

// Add appends an entry and schedules an incremental write.
func (p *Pipeline) Add(listID string, e model.Entry) error {
	if identity.Of(e) == "" {
		return fmt.Errorf("list %s: entry has no identity", listID)
	}
	items, ok := p.store.Items(listID)
	if !ok {
		return fmt.Errorf("list %s: items not loaded", listID)
	}

	p.mu.Lock()
	pd := p.ensure(listID, items)
	p.store.SetItems(listID, append(items, e))
	pd.added = append(pd.added, e)
	p.schedule(listID, pd, p.editDelay)
	p.mu.Unlock()
	return nil
}

// Remove deletes the entry with the given identity and schedules an
// incremental write.
func (p *Pipeline) Remove(listID, id string) error {
	items, ok := p.store.Items(listID)
	if !ok {
		return fmt.Errorf("list %s: items not loaded", listID)
	}
	_, i, found := identity.Find(items, id)
	if !found {
		return fmt.Errorf("list %s: no entry %q", listID, id)
	}

	p.mu.Lock()
	pd := p.ensure(listID, items)
	p.store.SetItems(listID, append(items[:i], items[i+1:]...))
	pd.removed = append(pd.removed, p.serverIdentity(pd, id))
	p.schedule(listID, pd, p.editDelay)
	p.mu.Unlock()
	return nil
}

// EditField patches one field of the entry with the given identity. Edits
// to identity-bearing fields (artist, title, releaseDate) are keyed by the
// identity the server still knows until the batch is flushed.
func (p *Pipeline) EditField(listID, id, field, value string) error {
	items, ok := p.store.Items(listID)
	if !ok {
		return fmt.Errorf("list %s: items not loaded", listID)
	}
	_, i, found := identity.Find(items, id)
	if !found {
		return fmt.Errorf("list %s: no entry %q", listID, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pd := p.ensure(listID, items)

	e := items[i]
	if err := model.ApplyField(&e, field, value); err != nil {
		return err
	}
	items[i] = e
	p.store.SetItems(listID, items)

	orig := p.serverIdentity(pd, id)
	fu, ok := pd.edits[orig]
	if !ok {
		fu = &model.FieldUpdate{Identity: orig, Patch: map[string]string{}}
		pd.edits[orig] = fu
		pd.editOrder = append(pd.editOrder, orig)
	}
	fu.Patch[field] = value

	if newID := identity.Of(e); newID != id {
		pd.alias[newID] = orig
		delete(pd.alias, id)
	}
	p.schedule(listID, pd, p.editDelay)
	return nil
}

// Flush sends any pending batch for listID immediately.
func (p *Pipeline) Flush(listID string) {
	p.flush(listID)
}

// ensure returns the pending record, capturing the rollback baseline at
// the start of a batch. Caller holds p.mu.
func (p *Pipeline) ensure(listID string, current []model.Entry) *pending {
	pd, ok := p.pending[listID]
	if !ok {
		pd = &pending{}
		p.pending[listID] = pd
	}
	if pd.edits == nil {
		pd.edits = make(map[string]*model.FieldUpdate)
	}
	if pd.alias == nil {
		pd.alias = make(map[string]string)
	}
	if !pd.baselineSet {
		pd.baseline = append([]model.Entry(nil), current...)
		pd.baselineSet = true
	}
	return pd
}

// serverIdentity maps a current local identity back to the one the server
// still has on record for this entry.
func (p *Pipeline) serverIdentity(pd *pending, id string) string {
	if orig, ok := pd.alias[id]; ok {
		return orig
	}
	return id
}

// schedule resets the per-list debounce timer. Caller holds p.mu.
func (p *Pipeline) schedule(listID string, pd *pending, d time.Duration) {
	if pd.timer != nil {
		pd.timer.Stop()
	}
	pd.timer = time.AfterFunc(d, func() { p.flush(listID) })
}

func (p *Pipeline) flush(listID string) {
	p.mu.Lock()
	pd, ok := p.pending[listID]
	if !ok || pd.empty() {
		p.mu.Unlock()
		return
	}
	if pd.inflight {
		// Writes to the same list are serialized: this batch goes out as
		// the now-current state once the outstanding one completes.
		pd.queued = true
		p.mu.Unlock()
		return
	}
	b := pd.take()
	pd.inflight = true
	var order []string
	if b.dirtyOrder {
		if items, ok := p.store.Items(listID); ok {
			order = snapshot.Take(items)
		}
	}
	p.mu.Unlock()

	p.send(listID, b, order)
}

func (p *Pipeline) send(listID string, b batch, order []string) {
	ctx := context.Background()
	var err error

	if len(b.upd.Added) > 0 || len(b.upd.Removed) > 0 || len(b.upd.Updated) > 0 {
		var res model.UpdateResult
		res, err = p.writer.Update(ctx, listID, b.upd)
		if err == nil {
			if len(res.Duplicates) > 0 {
				log.Printf("mutation: %s: %d added entries were duplicates", listID, len(res.Duplicates))
				p.dropLocalDuplicates(listID, res.Duplicates)
			}
			// The server committed this part; the rollback point moves
			// with it so a later failure cannot undo it.
			b.baseline = applyUpdate(b.baseline, b.upd)
			p.acknowledge(listID)
		}
	}
	if err == nil && b.dirtyOrder {
		if err = p.writer.Reorder(ctx, listID, order); err == nil {
			p.acknowledge(listID)
		}
	}

	p.mu.Lock()
	pd := p.pending[listID]
	pd.inflight = false
	if err != nil {
		// Roll back only what the server has not acknowledged and drop
		// everything pending; retrying is the user's call. The echo mark
		// is disarmed: the state it guarded is gone.
		p.store.SetItems(listID, b.baseline)
		if serr := p.snaps.Save(listID, snapshot.Take(b.baseline)); serr != nil {
			log.Printf("mutation: %s: save snapshot: %v", listID, serr)
		}
		p.snaps.ConsumeLocalSave(listID)
		if pd.timer != nil {
			pd.timer.Stop()
		}
		pd.take()
		pd.queued = false
		p.mu.Unlock()
		log.Printf("mutation: %s: write failed, rolled back: %v", listID, err)
		p.notify(listID, err)
		return
	}
	requeue := pd.queued
	pd.queued = false
	p.mu.Unlock()

	if requeue {
		p.flush(listID)
	}
}

// applyUpdate mirrors the server's merge of an incremental update onto the
// last acknowledged state: removals first, then field patches, survivors in
// order, adds at the tail with already-present identities skipped.
func applyUpdate(baseline []model.Entry, upd model.IncrementalUpdate) []model.Entry {
	items := append([]model.Entry(nil), baseline...)
	for _, id := range upd.Removed {
		if _, i, ok := identity.Find(items, id); ok {
			items = append(items[:i], items[i+1:]...)
		}
	}
	for _, fu := range upd.Updated {
		if _, i, ok := identity.Find(items, fu.Identity); ok {
			e := items[i]
			for field, value := range fu.Patch {
				// Fields already validated at EditField time.
				_ = model.ApplyField(&e, field, value)
			}
			items[i] = e
		}
	}
	seen := make(map[string]bool, len(items))
	for _, e := range items {
		seen[identity.Of(e)] = true
	}
	for _, e := range upd.Added {
		id := identity.Of(e)
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, e)
	}
	return items
}

// acknowledge records a successful server write: the next inbound push for
// this list is our own echo, and the snapshot becomes the new rollback and
// comparison point.
func (p *Pipeline) acknowledge(listID string) {
	p.snaps.MarkLocalSave(listID)
	if items, ok := p.store.Items(listID); ok {
		if err := p.snaps.Save(listID, snapshot.Take(items)); err != nil {
			log.Printf("mutation: %s: save snapshot: %v", listID, err)
		}
	}
}

// dropLocalDuplicates removes the optimistic copy of entries the server
// rejected as duplicates, so the local list converges back to the server.
func (p *Pipeline) dropLocalDuplicates(listID string, dups []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := p.store.Items(listID)
	if !ok {
		return
	}
	for _, dup := range dups {
		first, last := -1, -1
		for i, e := range items {
			if identity.Of(e) == dup {
				if first == -1 {
					first = i
				}
				last = i
			}
		}
		if first != -1 && last != first {
			items = append(items[:last], items[last+1:]...)
		}
	}
	p.store.SetItems(listID, items)
}
