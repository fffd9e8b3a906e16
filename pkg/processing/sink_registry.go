package processing

import (
	"sync"

	customlog "github.com/open-teleop/station/pkg/log"
)

// SinkInfo holds delivery statistics for one sink
type SinkInfo struct {
	Name          string `json:"name"`
	PublishCount  int64  `json:"publish_count"`
	ErrorCount    int64  `json:"error_count"`
	LastPublished int64  `json:"last_published"`
	LastError     string `json:"last_error,omitempty"`
}

// SinkRegistry maintains statistics about sinks
type SinkRegistry struct {
	logger customlog.Logger
	sinks  map[string]*SinkInfo
	mu     sync.RWMutex
}

// NewSinkRegistry creates a new sink registry
func NewSinkRegistry(logger customlog.Logger) *SinkRegistry {
	return &SinkRegistry{
		logger: logger,
		sinks:  make(map[string]*SinkInfo),
	}
}

// Register adds a sink with empty statistics. Registering twice keeps the
// existing counters.
func (r *SinkRegistry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[name]; !exists {
		r.sinks[name] = &SinkInfo{Name: name}
	}
}

// Record updates statistics after one publish attempt
func (r *SinkRegistry) Record(name string, err error, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.sinks[name]
	if !exists {
		info = &SinkInfo{Name: name}
		r.sinks[name] = info
	}

	if err != nil {
		info.ErrorCount++
		info.LastError = err.Error()
		return
	}
	info.PublishCount++
	info.LastPublished = timestamp
}

// GetSinkInfo returns a copy of the statistics for a sink
func (r *SinkRegistry) GetSinkInfo(name string) (SinkInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.sinks[name]
	if !exists {
		return SinkInfo{}, false
	}
	return *info, true
}

// GetAllSinks returns the names of all registered sinks
func (r *SinkRegistry) GetAllSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	return names
}

// GetSinkStats returns a copy of every sink's statistics keyed by name
func (r *SinkRegistry) GetSinkStats() map[string]SinkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]SinkInfo, len(r.sinks))
	for name, info := range r.sinks {
		stats[name] = *info
	}
	return stats
}
