package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestRunCheckSuccess(t *testing.T) {
	c := Check{ServiceType: model.ServiceScheduler, Probe: func(ctx context.Context) (string, error) {
		return "ok", nil
	}}
	result := runCheck(context.Background(), time.Second, c)
	require.True(t, result.Healthy)
	require.Equal(t, "ok", result.Message)
	require.Equal(t, model.ServiceScheduler, result.ServiceType)
}

func TestRunCheckFailure(t *testing.T) {
	c := Check{ServiceType: model.ServiceSSH, Probe: func(ctx context.Context) (string, error) {
		return "", errors.New("connection refused")
	}}
	result := runCheck(context.Background(), time.Second, c)
	require.False(t, result.Healthy)
	require.Equal(t, "connection refused", result.Message)
}

func TestRunCheckRecoversPanic(t *testing.T) {
	c := Check{ServiceType: model.ServiceFilesystem, Probe: func(ctx context.Context) (string, error) {
		panic("boom")
	}}
	result := runCheck(context.Background(), time.Second, c)
	require.False(t, result.Healthy)
	require.Contains(t, result.Message, "panicked")
}

func TestRunCheckRespectsTimeout(t *testing.T) {
	c := Check{ServiceType: model.ServiceScheduler, Probe: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	result := runCheck(context.Background(), 10*time.Millisecond, c)
	require.False(t, result.Healthy)
}

func TestRunAllCombinesIndependentChecks(t *testing.T) {
	checks := []Check{
		{ServiceType: model.ServiceScheduler, Probe: func(ctx context.Context) (string, error) { return "ok", nil }},
		{ServiceType: model.ServiceSSH, Probe: func(ctx context.Context) (string, error) { return "", errors.New("down") }},
	}
	snap := RunAll(context.Background(), time.Second, checks)
	require.Len(t, snap.Services, 2)
	require.True(t, snap.Services[model.ServiceScheduler].Healthy)
	require.False(t, snap.Services[model.ServiceSSH].Healthy)
}

func TestClusterProberRunOncePublishesSnapshot(t *testing.T) {
	cluster := &model.Cluster{Name: "daint", Probing: model.Probing{Timeout: time.Second}}
	checks := []Check{
		{ServiceType: model.ServiceScheduler, Probe: func(ctx context.Context) (string, error) { return "ok", nil }},
	}
	p := NewClusterProber(cluster, checks, nil)
	p.RunOnce(context.Background())

	snap := cluster.Health()
	require.NotNil(t, snap)
	require.True(t, snap.Services[model.ServiceScheduler].Healthy)
}

func TestClusterProberLoopTicksOnFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	cluster := &model.Cluster{
		Name:    "daint",
		Probing: model.Probing{Timeout: time.Second, Interval: time.Minute},
	}
	checks := []Check{
		{ServiceType: model.ServiceScheduler, Probe: func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		}},
	}
	p := NewClusterProber(cluster, checks, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Loop(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	require.Equal(t, 1, calls)

	clock.Advance(time.Minute)
	clock.BlockUntil(1)

	cancel()
	<-done
	require.GreaterOrEqual(t, calls, 2)
}

func TestStorageHealthSetAndGet(t *testing.T) {
	sh := &StorageHealth{Name: "object-store"}
	require.Nil(t, sh.Health())

	snap := &model.HealthSnapshot{Services: map[model.ServiceType]model.HealthResult{
		model.ServiceS3: {ServiceType: model.ServiceS3, Healthy: true},
	}}
	sh.setHealth(snap)
	require.Same(t, snap, sh.Health())
}

func TestStorageProberRunOnce(t *testing.T) {
	sh := &StorageHealth{Name: "object-store"}
	checks := []Check{
		{ServiceType: model.ServiceS3, Probe: func(ctx context.Context) (string, error) { return "bucket reachable", nil }},
	}
	p := NewStorageProber(sh, checks, time.Minute, time.Second, nil)
	p.RunOnce(context.Background())

	snap := sh.Health()
	require.NotNil(t, snap)
	require.True(t, snap.Services[model.ServiceS3].Healthy)
}
