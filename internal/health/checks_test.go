package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

type fakeSchedClient struct {
	pingErr error
}

func (f *fakeSchedClient) SubmitJob(ctx context.Context, desc model.JobDescription) (int64, error) {
	return 0, nil
}
func (f *fakeSchedClient) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	return nil, nil
}
func (f *fakeSchedClient) GetJobs(ctx context.Context, allUsers bool) ([]model.Job, error) {
	return nil, nil
}
func (f *fakeSchedClient) GetJobMetadata(ctx context.Context, jobID int64) (*model.JobMetadata, error) {
	return nil, nil
}
func (f *fakeSchedClient) CancelJob(ctx context.Context, jobID int64) error { return nil }
func (f *fakeSchedClient) Nodes(ctx context.Context) ([]model.Node, error)  { return nil, nil }
func (f *fakeSchedClient) Partitions(ctx context.Context) ([]model.Partition, error) {
	return nil, nil
}
func (f *fakeSchedClient) Reservations(ctx context.Context) ([]model.Reservation, error) {
	return nil, nil
}
func (f *fakeSchedClient) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeSchedClient) AttachCommand(jobID int64, entrypoint string) (string, error) {
	return "", nil
}

func TestSchedulerCheckHealthy(t *testing.T) {
	c := SchedulerCheck(&fakeSchedClient{})
	result := runCheck(context.Background(), time.Second, c)
	require.True(t, result.Healthy)
	require.Equal(t, model.ServiceScheduler, result.ServiceType)
}

func TestSchedulerCheckUnhealthy(t *testing.T) {
	c := SchedulerCheck(&fakeSchedClient{pingErr: errors.New("qstat: connection timed out")})
	result := runCheck(context.Background(), time.Second, c)
	require.False(t, result.Healthy)
	require.Contains(t, result.Message, "connection timed out")
}
