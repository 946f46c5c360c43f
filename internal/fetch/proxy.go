package fetch

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultProxyCooldown is how long a failed proxy stays out of rotation.
const DefaultProxyCooldown = 30 * time.Minute

// ProxyRegistry tracks a pool of host:port proxies together with their
// recent failure history. A proxy that fails is excluded from selection
// until its cooldown expires; expiry is computed from the recorded failure
// timestamp, there is no background sweep. Safe for concurrent use.
type ProxyRegistry struct {
	mu       sync.Mutex
	pool     []string
	working  map[string]bool
	bad      map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func NewProxyRegistry(cooldown time.Duration) *ProxyRegistry {
	if cooldown <= 0 {
		cooldown = DefaultProxyCooldown
	}
	return &ProxyRegistry{
		working:  make(map[string]bool),
		bad:      make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// LoadFile reads a newline-delimited host:port list. Blank lines and
// lines starting with "#" are skipped. Returns the number of proxies added.
func (r *ProxyRegistry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer f.Close()

	return r.Load(f)
}

func (r *ProxyRegistry) Load(reader io.Reader) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.pool = append(r.pool, line)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read proxy list: %w", err)
	}
	return count, nil
}

func (r *ProxyRegistry) Add(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = append(r.pool, addr)
}

// Pick returns a healthy proxy, preferring ones that have succeeded
// before. Returns false when no proxy is currently eligible, in which
// case callers should fall back to a direct connection.
func (r *ProxyRegistry) Pick() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var healthy, preferred []string
	for _, addr := range r.pool {
		if !r.eligible(addr) {
			continue
		}
		healthy = append(healthy, addr)
		if r.working[addr] {
			preferred = append(preferred, addr)
		}
	}

	candidates := healthy
	if len(preferred) > 0 {
		candidates = preferred
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// MarkBad records a connection failure, taking the proxy out of rotation
// for the cooldown period.
func (r *ProxyRegistry) MarkBad(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bad[addr] = r.now()
	delete(r.working, addr)
}

// MarkGood records a successful use, clearing any failure record.
func (r *ProxyRegistry) MarkGood(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bad, addr)
	r.working[addr] = true
}

func (r *ProxyRegistry) HealthyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, addr := range r.pool {
		if r.eligible(addr) {
			count++
		}
	}
	return count
}

func (r *ProxyRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

// eligible must be called with the mutex held.
func (r *ProxyRegistry) eligible(addr string) bool {
	failedAt, isBad := r.bad[addr]
	if !isBad {
		return true
	}
	if r.now().Sub(failedAt) >= r.cooldown {
		delete(r.bad, addr)
		return true
	}
	return false
}
