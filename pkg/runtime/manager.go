package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	ouerrors "openusage.dev/openusage/pkg/errors"
	"openusage.dev/openusage/pkg/hostapi"
	"openusage.dev/openusage/pkg/plugin"
)

// Handle identifies one activation of a plugin.
type Handle struct {
	ID       uuid.UUID
	PluginID string

	rt *Runtime
}

// Runtime returns the runtime behind the handle.
func (h *Handle) Runtime() *Runtime {
	return h.rt
}

// Manager owns the runtimes of all activated plugins. Each plugin runs in
// its own Lua state; a fault in one never affects another.
type Manager struct {
	surface *hostapi.Surface
	opts    Options
	logger  *slog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewManager creates a manager whose runtimes call into surface.
func NewManager(surface *hostapi.Surface, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		surface: surface,
		opts:    opts,
		logger:  opts.Logger,
		handles: make(map[string]*Handle),
	}
}

// Activate starts a runtime for p. A plugin can only have one live handle.
func (m *Manager) Activate(ctx context.Context, p *plugin.LoadedPlugin) (*Handle, error) {
	m.mu.Lock()
	if _, ok := m.handles[p.ID()]; ok {
		m.mu.Unlock()
		return nil, ouerrors.NewPluginError(p.ID(), "Activate", "plugin is already active")
	}
	h := &Handle{ID: uuid.New(), PluginID: p.ID(), rt: New(p, m.surface, m.opts)}
	m.handles[p.ID()] = h
	m.mu.Unlock()

	if err := h.rt.Activate(ctx); err != nil {
		m.logger.Warn("plugin activation failed", "plugin", p.ID(), "error", err)
		// Keep the handle so the failure shows up in probe output.
		return h, err
	}
	m.logger.Debug("plugin activation complete", "plugin", p.ID(), "handle", h.ID.String())
	return h, nil
}

// ActivateCatalog activates every plugin in c. Failures are collected and do
// not stop the remaining plugins.
func (m *Manager) ActivateCatalog(ctx context.Context, c *plugin.Catalog) ([]*Handle, []error) {
	var (
		handles []*Handle
		errs    []error
	)
	if c == nil {
		return nil, nil
	}
	for _, p := range c.Plugins {
		h, err := m.Activate(ctx, p)
		if h != nil {
			handles = append(handles, h)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return handles, errs
}

// Deactivate stops the runtime behind h and forgets it. Deactivating an
// unknown or already stopped handle is a no-op.
func (m *Manager) Deactivate(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	if cur, ok := m.handles[h.PluginID]; ok && cur.ID == h.ID {
		delete(m.handles, h.PluginID)
	}
	m.mu.Unlock()
	return h.rt.Deactivate()
}

// Lookup returns the handle for a plugin id.
func (m *Manager) Lookup(pluginID string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[pluginID]
	return h, ok
}

// Handles returns all live handles ordered by plugin id.
func (m *Manager) Handles() []*Handle {
	m.mu.RLock()
	out := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PluginID < out[j].PluginID })
	return out
}

// ProbeAll probes every plugin concurrently. Each plugin contributes exactly
// one output in plugin id order; a failing plugin yields an error badge.
func (m *Manager) ProbeAll(ctx context.Context) []ProbeOutput {
	handles := m.Handles()
	outputs := make([]ProbeOutput, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			out, err := h.rt.Probe(gctx)
			if err != nil {
				m.logger.Debug("probe failed", "plugin", h.PluginID, "error", err)
			}
			outputs[i] = out
			// Never fail the group; one plugin must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

// Publish delivers an event to every subscribed plugin and returns how many
// handlers were scheduled.
func (m *Manager) Publish(ctx context.Context, event string, payload map[string]any) int {
	return m.surface.Events().Publish(ctx, event, payload)
}

// StopAll deactivates every runtime.
func (m *Manager) StopAll() {
	for _, h := range m.Handles() {
		if err := m.Deactivate(h); err != nil {
			m.logger.Warn("failed to deactivate plugin", "plugin", h.PluginID, "error", err)
		}
	}
}

// ErrorOutput builds the probe output shown for a plugin that could not run.
func ErrorOutput(p *plugin.LoadedPlugin, err error) ProbeOutput {
	return ProbeOutput{
		ProviderID:  p.ID(),
		DisplayName: p.Name(),
		Lines:       []MetricLine{ErrorBadge(err.Error())},
	}
}
