package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/session"
)

// --- Fakes ---

type fakeVerifier struct {
	results map[string]session.Result
}

func (f *fakeVerifier) Verify(_ context.Context, token string) session.Result {
	if token == "" {
		return session.Result{Caller: session.Anonymous, Outcome: session.OutcomeNoToken}
	}
	if r, ok := f.results[token]; ok {
		return r
	}
	return session.Result{Caller: session.Anonymous, Token: token, Outcome: session.OutcomeInvalidToken}
}

func authenticated(token string, userID int64) session.Result {
	return session.Result{
		Caller:  session.Authenticated(userID, &session.Profile{ID: userID, Username: "reader"}),
		Token:   token,
		Outcome: session.OutcomeAuthenticated,
	}
}

type fakeCarts struct {
	mu         sync.Mutex
	lines      map[string][]cart.Line
	cleared    map[string][]cart.Line
	listErr    error
	clearErr   error
	restoreErr error
	clearKeys  []string
	restores   int
	onList     func()

	// lateClearErr is returned after the cart was cleared, as when the
	// response of a completed request is lost.
	lateClearErr error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{lines: map[string][]cart.Line{}, cleared: map[string][]cart.Line{}}
}

func (f *fakeCarts) ListCart(_ context.Context, token string) ([]cart.Line, error) {
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]cart.Line(nil), f.lines[token]...), nil
}

func (f *fakeCarts) ClearCart(_ context.Context, token, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearKeys = append(f.clearKeys, key)
	if f.clearErr != nil {
		return f.clearErr
	}
	if lines := f.lines[token]; len(lines) > 0 {
		f.cleared[key] = lines
	}
	delete(f.lines, token)
	return f.lateClearErr
}

func (f *fakeCarts) RestoreCart(_ context.Context, token, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores++
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.lines[token] = append(f.lines[token], f.cleared[key]...)
	delete(f.cleared, key)
	return nil
}

type memStore struct {
	mu        sync.Mutex
	orders    map[int64]*Order
	nextID    int64
	payments  map[int64]bool
	beginErr  error
	insertErr error
	linesErr  error
	commitErr error
	panicOn   string

	rollbacks int
	locked    []int64
	advisory  map[int64]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[int64]*Order{},
		payments: map[int64]bool{1: true, 2: true},
		advisory: map[int64]*sync.Mutex{},
	}
}

func (m *memStore) Begin(_ context.Context) (Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memTx{store: m}, nil
}

func (m *memStore) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for id := m.nextID; id > 0; id-- {
		if o, ok := m.orders[id]; ok && o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) SetStatus(_ context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memStore) committed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// memTx holds the user's advisory lock from LockUser until it ends, like
// pg_advisory_xact_lock.
type memTx struct {
	store  *memStore
	staged *Order
	done   bool
	held   *sync.Mutex
}

func (t *memTx) LockUser(_ context.Context, userID int64) error {
	t.store.mu.Lock()
	t.store.locked = append(t.store.locked, userID)
	l, ok := t.store.advisory[userID]
	if !ok {
		l = &sync.Mutex{}
		t.store.advisory[userID] = l
	}
	t.store.mu.Unlock()

	l.Lock()
	t.held = l
	return nil
}

func (t *memTx) unlock() {
	if t.held != nil {
		t.held.Unlock()
		t.held = nil
	}
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	if t.store.panicOn == "insert" {
		panic("boom")
	}
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if !t.store.payments[o.PaymentMethodID] {
		return errors.Wrap(ErrUnknownPaymentMethod, "insert order")
	}
	t.store.nextID++
	o.ID = t.store.nextID
	t.staged = o
	return nil
}

func (t *memTx) InsertLines(_ context.Context, _ *Order) error {
	return t.store.linesErr
}

func (t *memTx) Commit(_ context.Context) error {
	defer t.unlock()
	t.done = true
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *t.staged
	t.store.orders[cp.ID] = &cp
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	t.done = true
	t.unlock()
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.rollbacks++
	return nil
}

type fakeCatalog struct {
	books []book.Book
	err   error
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []int64) ([]book.Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []book.Book
	for _, b := range f.books {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}
