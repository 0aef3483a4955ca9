package media

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDoctorTTL = 5 * time.Minute

// Versioner reports the version of an installed tool.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// ToolStatus is the availability of one external tool.
type ToolStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the result of a doctor probe.
type Capabilities struct {
	Tools    []ToolStatus `json:"tools"`
	ProbedAt time.Time    `json:"probed_at"`
}

// AllAvailable reports whether every probed tool responded.
func (c *Capabilities) AllAvailable() bool {
	for _, t := range c.Tools {
		if !t.Available {
			return false
		}
	}
	return true
}

// CachedDoctor probes the external tools and caches the result with a TTL
// so health checks do not spawn processes on every request.
type CachedDoctor struct {
	names  []string
	tools  map[string]Versioner
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		tools:  make(map[string]Versioner),
		ttl:    defaultDoctorTTL,
		logger: logger,
	}
}

// Register adds a tool to probe.
func (d *CachedDoctor) Register(name string, v Versioner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tools[name]; !ok {
		d.names = append(d.names, name)
	}
	d.tools[name] = v
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := &Capabilities{ProbedAt: time.Now()}
	for _, name := range d.names {
		status := ToolStatus{Name: name}
		version, err := d.tools[name].Version(ctx)
		if err != nil {
			status.Error = err.Error()
			d.logger.Warn("tool probe failed", "tool", name, "error", err)
		} else {
			status.Available = true
			status.Version = version
		}
		caps.Tools = append(caps.Tools, status)
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
