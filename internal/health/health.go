// Package health runs the per-cluster and per-storage-backend probe loops:
// a fixed cadence (`probing.interval`), N concurrent checks per cycle each
// bounded by `probing.timeout`, and an atomic whole-snapshot swap so readers
// (the mediator's availability gate) never observe a half-written result.
// The checks themselves are the same scheduler/filesystem/storage
// operations a synchronous status check would run on demand, just run on a
// timer and cached. A clockwork.Clock-driven ticker loop exits on context
// cancellation, with sirupsen/logrus for lifecycle logging.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

var log = logrus.WithField(trace.Component, "health")

// Check is one probe-able service: ServiceType identifies it in the resulting
// HealthResult, Probe runs the actual check and returns a human-readable
// detail message on success (e.g. "3/3 mounts reachable") or an error.
type Check struct {
	ServiceType model.ServiceType
	Probe       func(ctx context.Context) (string, error)
}

// runCheck executes one Check under a deadline and recovers a panicking
// Probe into a failed HealthResult rather than taking down the prober loop.
func runCheck(ctx context.Context, timeout time.Duration, c Check) (result model.HealthResult) {
	result = model.HealthResult{ServiceType: c.ServiceType, LastChecked: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			result.Healthy = false
			result.Message = trace.Errorf("health check %s panicked: %v", c.ServiceType, r).Error()
		}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	message, err := c.Probe(checkCtx)
	result.Latency = time.Since(start)
	if err != nil {
		result.Healthy = false
		result.Message = err.Error()
		return result
	}
	result.Healthy = true
	result.Message = message
	return result
}

// RunAll runs every check concurrently and returns the combined snapshot.
// Each check gets its own timeout; a slow or panicking check never blocks
// or poisons the others.
func RunAll(ctx context.Context, timeout time.Duration, checks []Check) *model.HealthSnapshot {
	results := make([]model.HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = runCheck(ctx, timeout, c)
		}(i, c)
	}
	wg.Wait()

	services := make(map[model.ServiceType]model.HealthResult, len(results))
	for _, r := range results {
		services[r.ServiceType] = r
	}
	return &model.HealthSnapshot{Services: services}
}

// ClusterProber runs one Cluster's configured Checks on its own Probing
// cadence, atomically publishing each cycle's snapshot to cluster.SetHealth.
type ClusterProber struct {
	cluster *model.Cluster
	checks  []Check
	clock   clockwork.Clock
}

// NewClusterProber builds a prober for cluster using the given checks. An
// explicit clock lets tests drive the loop without sleeping.
func NewClusterProber(cluster *model.Cluster, checks []Check, clock clockwork.Clock) *ClusterProber {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClusterProber{cluster: cluster, checks: checks, clock: clock}
}

// RunOnce runs one probe cycle immediately and publishes its result.
func (p *ClusterProber) RunOnce(ctx context.Context) {
	snap := RunAll(ctx, p.cluster.Probing.Timeout, p.checks)
	p.cluster.SetHealth(snap)
	log.WithField("cluster", p.cluster.Name).Debug("published health snapshot")
}

// Loop runs RunOnce once immediately and then on every Probing.Interval
// tick until ctx is canceled.
func (p *ClusterProber) Loop(ctx context.Context) {
	p.RunOnce(ctx)
	ticker := p.clock.NewTicker(p.cluster.Probing.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.RunOnce(ctx)
		}
	}
}

// StorageHealth holds the most recently probed snapshot for one storage
// backend, published the same way a Cluster's health is: one atomic
// whole-snapshot replace per cycle.
type StorageHealth struct {
	Name string

	mu   sync.Mutex
	snap *model.HealthSnapshot
}

func (s *StorageHealth) Health() *model.HealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *StorageHealth) setHealth(snap *model.HealthSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// StorageProber runs a single backend's Checks (normally just S3Check) on a
// fixed cadence, the global-storage counterpart to ClusterProber.
type StorageProber struct {
	target   *StorageHealth
	checks   []Check
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
}

func NewStorageProber(target *StorageHealth, checks []Check, interval, timeout time.Duration, clock clockwork.Clock) *StorageProber {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StorageProber{target: target, checks: checks, interval: interval, timeout: timeout, clock: clock}
}

func (p *StorageProber) RunOnce(ctx context.Context) {
	snap := RunAll(ctx, p.timeout, p.checks)
	p.target.setHealth(snap)
	log.WithField("storage", p.target.Name).Debug("published health snapshot")
}

func (p *StorageProber) Loop(ctx context.Context) {
	p.RunOnce(ctx)
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.RunOnce(ctx)
		}
	}
}
