package buffer

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"alertrules/internal/clock"
)

// MemoryBuffer is the single-instance Buffer used in single mode and tests.
type MemoryBuffer struct {
	mu       sync.Mutex
	clk      clock.Clock
	leaseTTL time.Duration
	logger   *slog.Logger
	projects map[int64]*memoryProject
	leases   uint64
}

type memoryProject struct {
	pending    map[string]string
	inflight   map[string]string
	leaseUntil time.Time
	lease      string
	firstSeen  time.Time
}

// NewMemoryBuffer creates in-memory buffer with drain lease ttl.
// Params: clock for lease expiry, lease ttl, and logger for dropped rows.
// Returns: empty buffer.
func NewMemoryBuffer(clk clock.Clock, leaseTTL time.Duration, logger *slog.Logger) *MemoryBuffer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBuffer{
		clk:      clk,
		leaseTTL: leaseTTL,
		logger:   logger,
		projects: make(map[int64]*memoryProject),
	}
}

// Enqueue stores or overwrites one pending row.
func (b *MemoryBuffer) Enqueue(_ context.Context, projectID int64, key Key, payload Payload) error {
	value, err := payload.encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	project := b.project(projectID)
	if len(project.pending) == 0 && len(project.inflight) == 0 {
		project.firstSeen = b.clk.Now()
	}
	project.pending[key.Encode()] = value
	return nil
}

// DrainProject moves pending rows into the in-flight set and returns them.
// Params: project id.
// Returns: drained entries, or none while another drain holds the lease.
func (b *MemoryBuffer) DrainProject(_ context.Context, projectID int64) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	project, ok := b.projects[projectID]
	if !ok {
		return nil, nil
	}
	now := b.clk.Now()
	if now.Before(project.leaseUntil) {
		return nil, nil
	}
	for field, value := range project.pending {
		project.inflight[field] = value
	}
	project.pending = make(map[string]string)
	if len(project.inflight) == 0 {
		delete(b.projects, projectID)
		return nil, nil
	}
	b.leases++
	project.leaseUntil = now.Add(b.leaseTTL)
	project.lease = strconv.FormatUint(b.leases, 10)

	raw := make(map[string]string, len(project.inflight))
	for field, value := range project.inflight {
		raw[field] = value
	}
	entries, broken := decodeEntries(raw, project.lease, b.logger, projectID)
	for _, field := range broken {
		delete(project.inflight, field)
	}
	if len(entries) == 0 {
		project.release()
		b.dropIfEmpty(projectID, project)
	}
	return entries, nil
}

// Delete removes consumed in-flight rows and releases the drain lease when
// the entries still hold it.
func (b *MemoryBuffer) Delete(_ context.Context, projectID int64, entries []Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	project, ok := b.projects[projectID]
	if !ok {
		return nil
	}
	for _, entry := range entries {
		delete(project.inflight, entry.Field)
	}
	if lease := leaseOf(entries); lease != "" && lease == project.lease {
		project.release()
	}
	b.dropIfEmpty(projectID, project)
	return nil
}

// PendingProjects lists projects with buffered rows, oldest first.
func (b *MemoryBuffer) PendingProjects(_ context.Context, limit int) ([]int64, error) {
	b.mu.Lock()
	type candidate struct {
		id        int64
		firstSeen time.Time
	}
	candidates := make([]candidate, 0, len(b.projects))
	for id, project := range b.projects {
		candidates = append(candidates, candidate{id: id, firstSeen: project.firstSeen})
	}
	b.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].firstSeen.Equal(candidates[j].firstSeen) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].firstSeen.Before(candidates[j].firstSeen)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]int64, 0, len(candidates))
	for _, item := range candidates {
		out = append(out, item.id)
	}
	return out, nil
}

// Close is a no-op for memory buffer.
func (b *MemoryBuffer) Close() error {
	return nil
}

func (b *MemoryBuffer) project(projectID int64) *memoryProject {
	project, ok := b.projects[projectID]
	if !ok {
		project = &memoryProject{
			pending:  make(map[string]string),
			inflight: make(map[string]string),
		}
		b.projects[projectID] = project
	}
	return project
}

func (p *memoryProject) release() {
	p.leaseUntil = time.Time{}
	p.lease = ""
}

func (b *MemoryBuffer) dropIfEmpty(projectID int64, project *memoryProject) {
	if project.lease == "" && len(project.pending) == 0 && len(project.inflight) == 0 {
		delete(b.projects, projectID)
	}
}
