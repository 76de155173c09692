package tandem

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationStrategy selects how the key manager picks among eligible keys.
type RotationStrategy int

const (
	// RotateRoundRobin cycles an index over the eligible keys.
	RotateRoundRobin RotationStrategy = iota
	// RotateLeastUsed picks the eligible key with the fewest successful uses.
	RotateLeastUsed
	// RotateWeightedRandom picks randomly with less-used keys weighted higher.
	RotateWeightedRandom
)

// String returns the lowercase name of the strategy.
func (s RotationStrategy) String() string {
	switch s {
	case RotateLeastUsed:
		return "least-used"
	case RotateWeightedRandom:
		return "weighted-random"
	default:
		return "round-robin"
	}
}

// QuotaInfo is the immutable per-key quota configuration.
type QuotaInfo struct {
	// RequestsPerMinute bounds requests in any sliding 60s window. Zero
	// means unlimited.
	RequestsPerMinute int
	// RequestsPerHour bounds requests in any sliding 3600s window. Zero
	// means unlimited.
	RequestsPerHour int
	// BytesPerMinute bounds a single key's uploaded bytes in any sliding
	// 60s window. Zero means unlimited.
	BytesPerMinute int64
	// MaxConcurrentUploads hints at safe upload fan-out. Advisory.
	MaxConcurrentUploads int
}

// DefaultQuota mirrors the free-tier limits of the hosted backend.
func DefaultQuota() QuotaInfo {
	return QuotaInfo{
		RequestsPerMinute:    15,
		RequestsPerHour:      1000,
		BytesPerMinute:       100 << 20,
		MaxConcurrentUploads: 4,
	}
}

// KeyUsage is a point-in-time snapshot of one key's running record.
type KeyUsage struct {
	// ID is the key's internal identifier.
	ID string
	// Key is the credential string.
	Key string
	// UsageCount is the number of successful uses.
	UsageCount int64
	// LastUsed is the instant of the most recent selection.
	LastUsed time.Time
	// TotalBytes is the cumulative uploaded byte count.
	TotalBytes int64
	// RequestsLastMinute counts this key's selections in the last 60s.
	RequestsLastMinute int
	// RequestsLastHour counts this key's selections in the last 3600s.
	RequestsLastHour int
	// ConsecutiveErrors counts errors since the last success.
	ConsecutiveErrors int
	// Disabled reports whether the key is in cooldown.
	Disabled bool
	// DisabledUntil is when cooldown ends, zero when not disabled.
	DisabledUntil time.Time
}

// byteEvent is one byte-count observation in a key's sliding minute window.
type byteEvent struct {
	at time.Time
	n  int64
}

// keyState is the mutable per-key record guarded by the manager's mutex.
type keyState struct {
	id                string
	key               string
	usageCount        int64
	lastUsed          time.Time
	totalBytes        int64
	requests          []time.Time
	bytes             []byteEvent
	consecutiveErrors int
	disabled          bool
	disabledUntil     time.Time
}

// KeySource is the slice of the key manager that callers performing
// generator requests need: pick a key before the call, report the outcome
// after.
type KeySource interface {
	// GetAvailableKey returns a usable key, or false when every key is
	// exhausted or disabled. A returned key counts against its quotas
	// immediately.
	GetAvailableKey(requestSize int64) (string, bool)
	// ReportSuccess records a completed request and its uploaded bytes.
	ReportSuccess(key string, bytes int64)
	// ReportError records a failed request against the key.
	ReportError(key string, err error)
	// EstimatedWaitTime returns how long until minute-window capacity frees
	// up, zero when capacity exists now.
	EstimatedWaitTime() time.Duration
}

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithQuota sets the quota configuration. Default DefaultQuota().
func WithQuota(q QuotaInfo) KeyManagerOption {
	return func(m *KeyManager) { m.quota = q }
}

// WithStrategy sets the rotation strategy. Default round-robin.
func WithStrategy(s RotationStrategy) KeyManagerOption {
	return func(m *KeyManager) { m.strategy = s }
}

// WithCooldown sets how long a key stays disabled after repeated errors.
// Default 60s.
func WithCooldown(d time.Duration) KeyManagerOption {
	return func(m *KeyManager) { m.cooldown = d }
}

// WithKeyManagerLogger sets the manager's logger.
func WithKeyManagerLogger(l *slog.Logger) KeyManagerOption {
	return func(m *KeyManager) { m.logger = orNop(l) }
}

// maxConsecutiveErrors is how many errors in a row disable a key.
const maxConsecutiveErrors = 3

// KeyManager rotates API keys under quota and health rules. One mutex
// serializes all mutation; no lock is held while the caller does I/O.
type KeyManager struct {
	mu       sync.Mutex
	keys     map[string]*keyState
	order    []string
	rrIndex  int
	window   []time.Time
	quota    QuotaInfo
	strategy RotationStrategy
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
	rand     *rand.Rand

	done     chan struct{}
	stopOnce sync.Once
}

var _ KeySource = (*KeyManager)(nil)

// NewKeyManager builds a manager over the given keys. Duplicate and empty
// keys are dropped. Call Start to run background housekeeping.
func NewKeyManager(keys []string, opts ...KeyManagerOption) *KeyManager {
	m := &KeyManager{
		keys:     make(map[string]*keyState),
		quota:    DefaultQuota(),
		strategy: RotateRoundRobin,
		cooldown: 60 * time.Second,
		logger:   nopLogger,
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := m.keys[k]; ok {
			continue
		}
		m.keys[k] = &keyState{id: NewID(), key: k}
		m.order = append(m.order, k)
	}
	return m
}

// Start launches the housekeeping goroutine. It stops when ctx is cancelled
// or Close is called.
func (m *KeyManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.housekeep()
			}
		}
	}()
}

// Close stops housekeeping. Safe to call more than once.
func (m *KeyManager) Close() {
	m.stopOnce.Do(func() { close(m.done) })
}

// KeyCount returns how many keys the manager holds.
func (m *KeyManager) KeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// GetAvailableKey picks a key that can absorb a request of requestSize bytes
// without violating any quota, records the selection immediately, and
// returns it. False means no key is currently usable; callers may consult
// EstimatedWaitTime and retry.
func (m *KeyManager) GetAvailableKey(requestSize int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.windowHasCapacity(now) {
		return "", false
	}

	eligible := m.eligibleLocked(now, requestSize)
	if len(eligible) == 0 {
		return "", false
	}

	var picked *keyState
	switch m.strategy {
	case RotateLeastUsed:
		picked = eligible[0]
		for _, k := range eligible[1:] {
			if k.usageCount < picked.usageCount {
				picked = k
			}
		}
	case RotateWeightedRandom:
		picked = m.pickWeighted(eligible)
	default:
		picked = eligible[m.rrIndex%len(eligible)]
		m.rrIndex++
	}

	// The selection counts against quotas from this moment, whether or not
	// the caller ends up issuing the request.
	picked.lastUsed = now
	picked.requests = append(picked.requests, now)
	m.window = append(m.window, now)

	m.logger.Debug("key selected",
		"key_id", picked.id,
		"strategy", m.strategy.String(),
		"usage_count", picked.usageCount)
	return picked.key, true
}

// CanUseKey reports whether one specific key could absorb a request of
// requestSize bytes right now.
func (m *KeyManager) CanUseKey(key string, requestSize int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[key]
	if !ok {
		return false
	}
	now := m.now()
	return m.windowHasCapacity(now) && m.keyEligible(k, now, requestSize)
}

// ReportSuccess records a completed request: bump the use counter, add
// bytes, and clear the consecutive-error count.
func (m *KeyManager) ReportSuccess(key string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[key]
	if !ok {
		return
	}
	now := m.now()
	k.usageCount++
	k.lastUsed = now
	k.consecutiveErrors = 0
	if bytes > 0 {
		k.totalBytes += bytes
		k.bytes = append(k.bytes, byteEvent{at: now, n: bytes})
	}
}

// ReportError records a failed request. Three consecutive errors disable
// the key for the cooldown period.
func (m *KeyManager) ReportError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[key]
	if !ok {
		return
	}
	k.consecutiveErrors++
	if k.consecutiveErrors >= maxConsecutiveErrors && !k.disabled {
		k.disabled = true
		k.disabledUntil = m.now().Add(m.cooldown)
		m.logger.Warn("key disabled after consecutive errors",
			"key_id", k.id,
			"errors", k.consecutiveErrors,
			"cooldown", m.cooldown,
			"last_error", err)
	}
}

// EstimatedWaitTime returns zero when minute-window capacity exists, else
// the time until the oldest minute-window request ages out.
func (m *KeyManager) EstimatedWaitTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return 0
	}
	now := m.now()
	if m.quota.RequestsPerMinute <= 0 {
		return 0
	}
	cutoff := now.Add(-time.Minute)
	var inWindow []time.Time
	for _, t := range m.window {
		if t.After(cutoff) {
			inWindow = append(inWindow, t)
		}
	}
	if len(inWindow) < m.quota.RequestsPerMinute {
		return 0
	}
	oldest := inWindow[0]
	for _, t := range inWindow[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	wait := time.Minute - now.Sub(oldest)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// RecommendedBatchSize derives a safe per-tick batch size for files of the
// given estimated size, spreading quota across non-disabled keys. Always at
// least 1.
func (m *KeyManager) RecommendedBatchSize(estimatedFileSize int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	active := 0
	for _, key := range m.order {
		if !m.disabledNow(m.keys[key], now) {
			active++
		}
	}
	if active == 0 {
		return 1
	}

	batch := 1 << 30
	if m.quota.RequestsPerMinute > 0 {
		batch = m.quota.RequestsPerMinute / active
	}
	if m.quota.BytesPerMinute > 0 && estimatedFileSize > 0 {
		byBytes := int(m.quota.BytesPerMinute / int64(active) / estimatedFileSize)
		if byBytes < batch {
			batch = byBytes
		}
	}
	if batch < 1 {
		batch = 1
	}
	return batch
}

// Usage returns a snapshot of every key's record, in construction order.
func (m *KeyManager) Usage() []KeyUsage {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]KeyUsage, 0, len(m.order))
	for _, key := range m.order {
		k := m.keys[key]
		out = append(out, KeyUsage{
			ID:                 k.id,
			Key:                k.key,
			UsageCount:         k.usageCount,
			LastUsed:           k.lastUsed,
			TotalBytes:         k.totalBytes,
			RequestsLastMinute: countAfter(k.requests, now.Add(-time.Minute)),
			RequestsLastHour:   countAfter(k.requests, now.Add(-time.Hour)),
			ConsecutiveErrors:  k.consecutiveErrors,
			Disabled:           m.disabledNow(k, now),
			DisabledUntil:      k.disabledUntil,
		})
	}
	return out
}

// --- internals, caller holds m.mu ---

// windowHasCapacity checks the global request window against the minute and
// hour quotas.
func (m *KeyManager) windowHasCapacity(now time.Time) bool {
	if m.quota.RequestsPerMinute > 0 &&
		countAfter(m.window, now.Add(-time.Minute)) >= m.quota.RequestsPerMinute {
		return false
	}
	if m.quota.RequestsPerHour > 0 &&
		countAfter(m.window, now.Add(-time.Hour)) >= m.quota.RequestsPerHour {
		return false
	}
	return true
}

// disabledNow treats an expired cooldown as not disabled; housekeeping
// clears the flag itself.
func (m *KeyManager) disabledNow(k *keyState, now time.Time) bool {
	return k.disabled && now.Before(k.disabledUntil)
}

// keyEligible checks the per-key constraints: cooldown and the sliding
// minute byte window.
func (m *KeyManager) keyEligible(k *keyState, now time.Time, requestSize int64) bool {
	if m.disabledNow(k, now) {
		return false
	}
	if m.quota.BytesPerMinute > 0 {
		var recent int64
		cutoff := now.Add(-time.Minute)
		for _, e := range k.bytes {
			if e.at.After(cutoff) {
				recent += e.n
			}
		}
		if recent+requestSize > m.quota.BytesPerMinute {
			return false
		}
	}
	return true
}

// eligibleLocked returns usable keys sorted by (errors asc, usage asc,
// bytes asc). The sort is stable, so fresh keys keep construction order.
func (m *KeyManager) eligibleLocked(now time.Time, requestSize int64) []*keyState {
	eligible := make([]*keyState, 0, len(m.order))
	for _, key := range m.order {
		k := m.keys[key]
		if m.keyEligible(k, now, requestSize) {
			eligible = append(eligible, k)
		}
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		ka, kb := eligible[a], eligible[b]
		if ka.consecutiveErrors != kb.consecutiveErrors {
			return ka.consecutiveErrors < kb.consecutiveErrors
		}
		if ka.usageCount != kb.usageCount {
			return ka.usageCount < kb.usageCount
		}
		return ka.totalBytes < kb.totalBytes
	})
	return eligible
}

// pickWeighted assigns each key weight (Σ usage − usage) + 1 and picks
// uniformly in [1, Σ weights].
func (m *KeyManager) pickWeighted(eligible []*keyState) *keyState {
	var totalUsage int64
	for _, k := range eligible {
		totalUsage += k.usageCount
	}
	var totalWeight int64
	weights := make([]int64, len(eligible))
	for i, k := range eligible {
		weights[i] = totalUsage - k.usageCount + 1
		totalWeight += weights[i]
	}
	pick := m.rand.Int63n(totalWeight) + 1
	var sum int64
	for i, w := range weights {
		sum += w
		if sum >= pick {
			return eligible[i]
		}
	}
	return eligible[len(eligible)-1]
}

// housekeep purges stale window entries and revives keys whose cooldown has
// passed.
func (m *KeyManager) housekeep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	hourCutoff := now.Add(-time.Hour)
	minuteCutoff := now.Add(-time.Minute)

	m.window = pruneAfter(m.window, hourCutoff)
	for _, key := range m.order {
		k := m.keys[key]
		k.requests = pruneAfter(k.requests, hourCutoff)
		pruned := k.bytes[:0]
		for _, e := range k.bytes {
			if e.at.After(minuteCutoff) {
				pruned = append(pruned, e)
			}
		}
		k.bytes = pruned
		if k.disabled && !now.Before(k.disabledUntil) {
			k.disabled = false
			k.disabledUntil = time.Time{}
			m.logger.Info("key re-enabled after cooldown", "key_id", k.id)
		}
	}
}

// countAfter counts timestamps strictly after cutoff.
func countAfter(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// pruneAfter keeps timestamps strictly after cutoff, reusing the backing
// array.
func pruneAfter(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// --- key discovery ---

// EnvAPIKeys is the environment variable holding the API key list.
const EnvAPIKeys = "TANDEM_API_KEYS"

// ParseKeys splits a comma- or newline-separated key list, trimming
// whitespace and dropping empties.
func ParseKeys(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			keys = append(keys, f)
		}
	}
	return keys
}

// KeysFromEnv reads the key list from TANDEM_API_KEYS. An empty result
// means no generator calls are possible.
func KeysFromEnv() []string {
	return ParseKeys(os.Getenv(EnvAPIKeys))
}
