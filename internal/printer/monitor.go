package printer

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PortMonitor periodically scans for serial ports and reports the ones
// that appear or disappear.
type PortMonitor struct {
	scan     func() []string
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	ports     map[string]struct{}
	onAdded   func(string)
	onRemoved func(string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPortMonitor creates a monitor. A nil scan uses ScanSerialPorts.
func NewPortMonitor(scan func() []string, interval time.Duration, logger *zap.Logger) *PortMonitor {
	if scan == nil {
		scan = ScanSerialPorts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &PortMonitor{
		scan:     scan,
		interval: interval,
		logger:   logger.With(zap.String("component", "port_monitor")),
		ports:    make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnPortAdded registers a callback for new ports
func (m *PortMonitor) OnPortAdded(callback func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onAdded = callback
}

// OnPortRemoved registers a callback for ports that went away
func (m *PortMonitor) OnPortRemoved(callback func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onRemoved = callback
}

// Start takes an initial scan and then rescans every interval
func (m *PortMonitor) Start() {
	m.CheckChanges()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.CheckChanges()
			}
		}
	}()
}

// Stop stops the monitor
func (m *PortMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Ports returns the ports seen by the last scan, sorted
func (m *PortMonitor) Ports() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.ports))
	for p := range m.ports {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CheckChanges rescans once and fires callbacks for every difference
func (m *PortMonitor) CheckChanges() {
	current := make(map[string]struct{})
	for _, p := range m.scan() {
		current[p] = struct{}{}
	}

	m.mu.Lock()
	var added, removed []string
	for p := range current {
		if _, exists := m.ports[p]; !exists {
			added = append(added, p)
		}
	}
	for p := range m.ports {
		if _, exists := current[p]; !exists {
			removed = append(removed, p)
		}
	}
	m.ports = current
	onAdded, onRemoved := m.onAdded, m.onRemoved
	m.mu.Unlock()

	sort.Strings(added)
	sort.Strings(removed)

	for _, p := range added {
		m.logger.Info("Serial port added", zap.String("port", p))
		if onAdded != nil {
			onAdded(p)
		}
	}
	for _, p := range removed {
		m.logger.Info("Serial port removed", zap.String("port", p))
		if onRemoved != nil {
			onRemoved(p)
		}
	}
}
