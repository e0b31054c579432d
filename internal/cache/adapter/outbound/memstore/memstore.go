package memstore

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/eviction"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
)

const (
	// EntryOverhead approximates per-entry bookkeeping bytes on top of key
	// and value.
	EntryOverhead = 48

	DefaultSegments  = 16
	DefaultHighWater = 0.9
	DefaultLowWater  = 0.75
)

// Config sizes the store. Capacity is split evenly across segments.
type Config struct {
	Capacity  int64               `json:"capacity_bytes" yaml:"capacity_bytes"`
	Segments  int                 `json:"segments" yaml:"segments"`
	HighWater float64             `json:"high_water" yaml:"high_water"`
	LowWater  float64             `json:"low_water" yaml:"low_water"`
	Policy    eviction.PolicyType `json:"policy" yaml:"policy"`
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Segments < 0 {
		return fmt.Errorf("segments must not be negative, got %d", c.Segments)
	}
	if c.HighWater < 0 || c.HighWater > 1 || c.LowWater < 0 || c.LowWater > 1 {
		return fmt.Errorf("water marks must be within [0, 1]")
	}
	if c.LowWater > c.HighWater && c.HighWater > 0 {
		return fmt.Errorf("low water %.2f above high water %.2f", c.LowWater, c.HighWater)
	}
	return nil
}

type Option func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics sets the sink for hit, miss and eviction counters.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithPolicyOptions passes options to every segment's eviction policy.
func WithPolicyOptions(opts ...eviction.Option) Option {
	return func(s *Store) {
		s.policyOpts = append(s.policyOpts, opts...)
	}
}

// Store is a segmented in-memory ShardStore. A key's segment is chosen by
// xxhash(key) % segments; each segment has its own lock, map, eviction
// policy and byte budget.
type Store struct {
	segments   []*segment
	now        func() time.Time
	sink       metrics.Sink
	policyOpts []eviction.Option
	capacity   int64

	// clock is the highest version the store has assigned or applied.
	// New versions are assigned above it so that a key never reuses a
	// version after eviction or expiry.
	clock atomic.Uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

var _ port.ShardStore = (*Store)(nil)

type record struct {
	entry  domain.Entry
	size   int64
	pinned bool
}

type segment struct {
	mu         sync.Mutex
	id         string
	entries    map[string]*record
	tombstones map[string]domain.Tombstone
	policy     eviction.Policy
	bytes      int64
	pinned     int
	capacity   int64
	high       int64
	low        int64
}

// New builds a store from cfg.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Segments == 0 {
		cfg.Segments = DefaultSegments
	}
	if cfg.HighWater == 0 {
		cfg.HighWater = DefaultHighWater
	}
	if cfg.LowWater == 0 {
		cfg.LowWater = min(DefaultLowWater, cfg.HighWater)
	}
	if cfg.Policy == "" {
		cfg.Policy = eviction.LRU
	}

	s := &Store{
		now:      time.Now,
		sink:     metrics.Nop{},
		capacity: cfg.Capacity,
	}
	for _, opt := range opts {
		opt(s)
	}

	factory, err := eviction.NewFactory(cfg.Policy, append([]eviction.Option{eviction.WithClock(s.now)}, s.policyOpts...)...)
	if err != nil {
		return nil, err
	}

	perSegment := cfg.Capacity / int64(cfg.Segments)
	s.segments = make([]*segment, cfg.Segments)
	for i := range s.segments {
		s.segments[i] = &segment{
			id:         strconv.Itoa(i),
			entries:    make(map[string]*record),
			tombstones: make(map[string]domain.Tombstone),
			policy:     factory(),
			capacity:   perSegment,
			high:       int64(float64(perSegment) * cfg.HighWater),
			low:        int64(float64(perSegment) * cfg.LowWater),
		}
	}
	return s, nil
}

// EntrySize is the accounted size of a key/value pair.
func EntrySize(key string, value []byte) int64 {
	return int64(len(key)+len(value)) + EntryOverhead
}

func (s *Store) segmentFor(key string) *segment {
	return s.segments[xxhash.Sum64String(key)%uint64(len(s.segments))]
}

func (s *Store) Get(key string) (domain.Entry, bool) {
	seg := s.segmentFor(key)
	now := s.now()

	seg.mu.Lock()
	rec, ok := seg.entries[key]
	if ok && rec.entry.Expired(now) {
		seg.removeLocked(key, rec)
		ok = false
	}
	if !ok {
		seg.mu.Unlock()
		s.misses.Add(1)
		s.sink.Emit(metrics.CacheMisses, 1, nil)
		return domain.Entry{}, false
	}
	rec.entry.LastAccess = now
	if !rec.pinned {
		seg.policy.Touch(key)
	}
	entry := cloneEntry(rec.entry)
	seg.mu.Unlock()

	s.hits.Add(1)
	s.sink.Emit(metrics.CacheHits, 1, nil)
	return entry, true
}

func (s *Store) Set(key string, value []byte, ttl time.Duration, pin bool) (uint64, error) {
	if key == "" {
		return 0, domain.ErrInvalidKey
	}

	seg := s.segmentFor(key)
	now := s.now()
	size := EntrySize(key, value)

	seg.mu.Lock()
	defer seg.mu.Unlock()

	var floor uint64
	if rec, ok := seg.entries[key]; ok {
		floor = rec.entry.Version
	}
	if ts, ok := seg.tombstones[key]; ok && ts.Version > floor {
		floor = ts.Version
	}

	if err := s.admitLocked(seg, key, size); err != nil {
		return 0, err
	}

	version := s.nextVersion(floor)
	entry := domain.Entry{
		Key:        key,
		Value:      cloneBytes(value),
		Version:    version,
		LastAccess: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	seg.putLocked(key, entry, size, pin)
	return version, nil
}

func (s *Store) Delete(key string) (bool, uint64) {
	seg := s.segmentFor(key)
	now := s.now()

	seg.mu.Lock()
	defer seg.mu.Unlock()

	var floor uint64
	rec, existed := seg.entries[key]
	if existed {
		floor = rec.entry.Version
		if rec.entry.Expired(now) {
			existed = false
		}
		seg.removeLocked(key, rec)
	}
	if ts, ok := seg.tombstones[key]; ok && ts.Version > floor {
		floor = ts.Version
	}

	version := s.nextVersion(floor)
	seg.tombstones[key] = domain.Tombstone{Version: version, DeletedAt: now}
	return existed, version
}

func (s *Store) ApplyReplicated(msg domain.ReplicationMessage) (domain.ApplyResult, error) {
	if msg.Key == "" {
		return 0, domain.ErrInvalidKey
	}

	seg := s.segmentFor(msg.Key)
	now := s.now()

	seg.mu.Lock()
	defer seg.mu.Unlock()

	var current uint64
	rec, exists := seg.entries[msg.Key]
	if exists {
		current = rec.entry.Version
	}
	if ts, ok := seg.tombstones[msg.Key]; ok && ts.Version > current {
		current = ts.Version
	}
	if msg.Version <= current {
		return domain.Stale, nil
	}

	if msg.Tombstone {
		if exists {
			seg.removeLocked(msg.Key, rec)
		}
		seg.tombstones[msg.Key] = domain.Tombstone{Version: msg.Version, DeletedAt: now}
		s.observe(msg.Version)
		return domain.Applied, nil
	}

	size := EntrySize(msg.Key, msg.Value)
	if err := s.admitLocked(seg, msg.Key, size); err != nil {
		return 0, err
	}

	seg.putLocked(msg.Key, domain.Entry{
		Key:        msg.Key,
		Value:      cloneBytes(msg.Value),
		Version:    msg.Version,
		ExpiresAt:  msg.ExpiresAt,
		LastAccess: now,
	}, size, false)
	s.observe(msg.Version)
	return domain.Applied, nil
}

func (s *Store) MarkResolved(key string, version uint64) {
	seg := s.segmentFor(key)

	seg.mu.Lock()
	defer seg.mu.Unlock()

	rec, ok := seg.entries[key]
	if !ok || !rec.pinned || rec.entry.Version != version {
		return
	}
	rec.pinned = false
	seg.pinned--
	seg.policy.Add(key, rec.size, rec.entry.ExpiresAt)
}

func (s *Store) Export(key string) (domain.ReplicationMessage, bool) {
	seg := s.segmentFor(key)

	seg.mu.Lock()
	defer seg.mu.Unlock()

	if rec, ok := seg.entries[key]; ok && !rec.entry.Expired(s.now()) {
		return entryMessage(rec.entry), true
	}
	if ts, ok := seg.tombstones[key]; ok {
		return domain.ReplicationMessage{Key: key, Version: ts.Version, Tombstone: true}, true
	}
	return domain.ReplicationMessage{}, false
}

// Scan copies one segment at a time and calls fn outside the segment lock.
func (s *Store) Scan(fn func(msg domain.ReplicationMessage) bool) {
	for _, seg := range s.segments {
		now := s.now()

		seg.mu.Lock()
		batch := make([]domain.ReplicationMessage, 0, len(seg.entries)+len(seg.tombstones))
		for _, rec := range seg.entries {
			if !rec.entry.Expired(now) {
				batch = append(batch, entryMessage(rec.entry))
			}
		}
		for key, ts := range seg.tombstones {
			batch = append(batch, domain.ReplicationMessage{Key: key, Version: ts.Version, Tombstone: true})
		}
		seg.mu.Unlock()

		for _, msg := range batch {
			if !fn(msg) {
				return
			}
		}
	}
}

func (s *Store) PurgeExpired(now time.Time) int {
	purged := 0
	for _, seg := range s.segments {
		seg.mu.Lock()
		for key, rec := range seg.entries {
			if rec.entry.Expired(now) {
				seg.removeLocked(key, rec)
				purged++
			}
		}
		seg.mu.Unlock()
	}
	return purged
}

func (s *Store) PurgeTombstones(cutoff time.Time) int {
	purged := 0
	for _, seg := range s.segments {
		seg.mu.Lock()
		for key, ts := range seg.tombstones {
			if ts.DeletedAt.Before(cutoff) {
				delete(seg.tombstones, key)
				purged++
			}
		}
		seg.mu.Unlock()
	}
	return purged
}

func (s *Store) Stats() domain.StoreStats {
	st := domain.StoreStats{
		Capacity:  s.capacity,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
	for _, seg := range s.segments {
		seg.mu.Lock()
		st.Entries += len(seg.entries)
		st.Tombstones += len(seg.tombstones)
		st.Bytes += seg.bytes
		st.Pinned += seg.pinned
		seg.mu.Unlock()
	}
	return st
}

// admitLocked makes room for size bytes under key. When the projected usage
// crosses the high-water mark it evicts policy candidates down towards the
// low-water mark, never below it once under high water. Pinned entries are
// not tracked by the policy and so are never candidates. A write that could
// not fit even after evicting every candidate is rejected before anything
// is evicted. The key being written is taken out of the policy for the sweep.
func (s *Store) admitLocked(seg *segment, key string, size int64) error {
	if size > seg.capacity {
		s.sink.Emit(metrics.CapacityRejections, 1, nil)
		return &domain.CapacityExceededError{Key: key, Size: size, Capacity: seg.capacity}
	}

	projected := seg.bytes + size
	self, exists := seg.entries[key]
	if exists {
		projected -= self.size
	}
	if projected > seg.capacity && projected-seg.policy.Reclaimable(key) > seg.capacity {
		s.sink.Emit(metrics.CapacityRejections, 1, nil)
		return &domain.CapacityExceededError{Key: key, Size: size, Capacity: seg.capacity}
	}
	if exists && !self.pinned {
		seg.policy.Remove(key)
	}

	if projected > seg.high {
		evicted := 0
		for projected > seg.low {
			cand, ok := seg.policy.EvictionCandidate()
			if !ok {
				break
			}
			rec := seg.entries[cand]
			if rec == nil {
				// policy drifted from the map; drop the stray key
				seg.policy.Remove(cand)
				continue
			}
			if projected-rec.size < seg.low && projected <= seg.high {
				break
			}
			seg.removeLocked(cand, rec)
			projected -= rec.size
			evicted++
		}
		if evicted > 0 {
			s.evictions.Add(uint64(evicted))
			s.sink.Emit(metrics.Evictions, float64(evicted), map[string]string{"segment": seg.id})
		}
	}

	if projected > seg.capacity {
		if exists && !self.pinned {
			seg.policy.Add(key, self.size, self.entry.ExpiresAt)
		}
		s.sink.Emit(metrics.CapacityRejections, 1, nil)
		return &domain.CapacityExceededError{Key: key, Size: size, Capacity: seg.capacity}
	}
	return nil
}

// nextVersion returns a version above floor and above every version the
// store has seen.
func (s *Store) nextVersion(floor uint64) uint64 {
	for {
		cur := s.clock.Load()
		next := max(cur, floor) + 1
		if s.clock.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (s *Store) observe(version uint64) {
	for {
		cur := s.clock.Load()
		if version <= cur || s.clock.CompareAndSwap(cur, version) {
			return
		}
	}
}

// putLocked replaces any existing record for key. Callers have already made
// room through admitLocked.
func (seg *segment) putLocked(key string, entry domain.Entry, size int64, pin bool) {
	if old, ok := seg.entries[key]; ok {
		seg.bytes -= old.size
		if old.pinned {
			seg.pinned--
		} else {
			seg.policy.Remove(key)
		}
	}
	delete(seg.tombstones, key)

	seg.entries[key] = &record{entry: entry, size: size, pinned: pin}
	seg.bytes += size
	if pin {
		seg.pinned++
	} else {
		seg.policy.Add(key, size, entry.ExpiresAt)
	}
}

func (seg *segment) removeLocked(key string, rec *record) {
	delete(seg.entries, key)
	seg.bytes -= rec.size
	if rec.pinned {
		seg.pinned--
	} else {
		seg.policy.Remove(key)
	}
}

func entryMessage(e domain.Entry) domain.ReplicationMessage {
	return domain.ReplicationMessage{
		Key:       e.Key,
		Value:     cloneBytes(e.Value),
		Version:   e.Version,
		ExpiresAt: e.ExpiresAt,
	}
}

func cloneEntry(e domain.Entry) domain.Entry {
	e.Value = cloneBytes(e.Value)
	return e
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
