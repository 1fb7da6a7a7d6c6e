package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleStore persists telemetry Events to an embedded Pebble LSM tree,
// adapted from the teacher's store.PebbleStore[T] — same prefix-scoped
// key layout and CBOR value encoding, specialized to Event.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
	prefix []byte
}

// PebbleStoreConfig configures the Pebble-backed event log.
type PebbleStoreConfig struct {
	Path   string
	Prefix string
	Opts   *pebble.Options
}

// NewPebbleStore opens (or creates) a Pebble database at config.Path.
func NewPebbleStore(config PebbleStoreConfig) (*PebbleStore, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	prefix := []byte(config.Prefix)
	if len(prefix) == 0 {
		prefix = []byte("telemetry:")
	}

	return &PebbleStore{db: db, prefix: prefix}, nil
}

func (p *PebbleStore) makeKey(key string) []byte {
	full := make([]byte, len(p.prefix)+len(key))
	copy(full, p.prefix)
	copy(full[len(p.prefix):], key)
	return full
}

func (p *PebbleStore) Save(ctx context.Context, key string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	data, err := cbor.Marshal(event)
	if err != nil {
		return err
	}
	return p.db.Set(p.makeKey(key), data, pebble.Sync)
}

func (p *PebbleStore) Load(ctx context.Context, key string) (Event, error) {
	var zero Event
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return zero, ErrStoreClosed
	}

	data, closer, err := p.db.Get(p.makeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	defer closer.Close()

	var ev Event
	if err := cbor.Unmarshal(data, &ev); err != nil {
		return zero, err
	}
	return ev, nil
}

func (p *PebbleStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	var keys []string
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: append(append([]byte{}, p.prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()[len(p.prefix):]))
	}
	return keys, iter.Error()
}

func (p *PebbleStore) Count(ctx context.Context) (int64, error) {
	keys, err := p.List(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStoreClosed
	}
	p.closed = true
	return p.db.Close()
}
