package certledger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/certguard/certguard/internal/canonical"
)

// Option configures a ledger implementation.
type Option func(*options)

type options struct {
	now  func() time.Time
	pick func(n int) int
}

// WithClock overrides the time source used for CreatedAt and the genesis year.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPicker overrides how TamperRandom chooses a record. pick receives the
// number of candidate records and must return an index in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(o *options) { o.pick = pick }
}

func buildOptions(opts []Option) options {
	o := options{
		now:  func() time.Time { return time.Now().UTC() },
		pick: rand.IntN,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []*Record
	byID    map[string]*Record
	opts    options
}

// New creates an empty MemoryLedger. Call EnsureGenesis, or Append, to seed
// the chain.
func New(opts ...Option) *MemoryLedger {
	return &MemoryLedger{
		byID: make(map[string]*Record),
		opts: buildOptions(opts),
	}
}

// EnsureGenesis implements Ledger.
func (l *MemoryLedger) EnsureGenesis(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureGenesisLocked()
	return nil
}

func (l *MemoryLedger) ensureGenesisLocked() bool {
	if len(l.records) > 0 {
		return false
	}
	g := newGenesis(l.opts.now())
	l.records = append(l.records, g)
	l.byID[g.ID] = g
	return true
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, f canonical.IdentityFields) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureGenesisLocked()
	if _, ok := l.byID[f.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, f.ID)
	}

	prev := l.records[len(l.records)-1]
	r := newRecord(len(l.records), f, prev.Hash, l.opts.now())
	l.records = append(l.records, r)
	l.byID[r.ID] = r
	return clone(r), nil
}

// GetByID implements Ledger.
func (l *MemoryLedger) GetByID(_ context.Context, id string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(r), nil
}

// List implements Ledger.
func (l *MemoryLedger) List(_ context.Context) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked(), nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return GenesisHash, nil
	}
	return l.records[len(l.records)-1].Hash, nil
}

// VerifyIntegrity implements Ledger.
func (l *MemoryLedger) VerifyIntegrity(_ context.Context) (*IntegrityReport, error) {
	l.mu.Lock()
	if l.ensureGenesisLocked() {
		l.mu.Unlock()
		return emptyChainReport(), nil
	}
	records := l.snapshotLocked()
	l.mu.Unlock()

	return verifyChain(records), nil
}

// TamperRandom implements Ledger.
func (l *MemoryLedger) TamperRandom(_ context.Context) (*TamperResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) < 2 {
		return nil, ErrNotEnoughRecords
	}
	idx := 1 + l.opts.pick(len(l.records)-1)
	r := l.records[idx]
	r.StudentName += TamperSuffix
	return &TamperResult{Seq: r.Seq, CertificateID: r.ID, Message: tamperMessage(r.ID)}, nil
}

// Reset implements Ledger.
func (l *MemoryLedger) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.byID = make(map[string]*Record)
	l.ensureGenesisLocked()
	return nil
}

func (l *MemoryLedger) snapshotLocked() []*Record {
	out := make([]*Record, len(l.records))
	for i, r := range l.records {
		out[i] = clone(r)
	}
	return out
}

func clone(r *Record) *Record {
	c := *r
	return &c
}
