package health

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// SchedulerCheck probes a cluster's scheduler backend via its Ping method
// (scontrol ping / qstat -Bf / a plain REST health endpoint, depending on
// backend), matching the synchronous `/status/{system}` scheduler check.
func SchedulerCheck(client scheduler.Client) Check {
	return Check{
		ServiceType: model.ServiceScheduler,
		Probe: func(ctx context.Context) (string, error) {
			if err := client.Ping(ctx); err != nil {
				return "", trace.Wrap(err)
			}
			return "scheduler responded to ping", nil
		},
	}
}

// FilesystemCheck stats every configured mount over the cluster's own
// service-account SSH identity, confirming the login node can see each
// filesystem the gateway advertises.
func FilesystemCheck(pool *sshpool.Pool, serviceUsername, serviceToken string, mounts []string) Check {
	return Check{
		ServiceType: model.ServiceFilesystem,
		Probe: func(ctx context.Context) (string, error) {
			ok := 0
			var firstErr error
			err := pool.WithClient(ctx, serviceUsername, serviceToken, func(c *sshpool.Client) error {
				for _, mount := range mounts {
					if _, err := c.Execute(ctx, fsops.NewStat(mount, true), nil); err != nil {
						if firstErr == nil {
							firstErr = err
						}
						continue
					}
					ok++
				}
				return nil
			})
			if err != nil {
				return "", trace.Wrap(err)
			}
			if ok != len(mounts) {
				return "", trace.Wrap(firstErr, "%d/%d mounts reachable", ok, len(mounts))
			}
			return fmt.Sprintf("%d/%d mounts reachable", ok, len(mounts)), nil
		},
	}
}

// SSHCheck confirms the pool can acquire (and the cluster will hand back) a
// session for the service account, without running any command.
func SSHCheck(pool *sshpool.Pool, serviceUsername, serviceToken string) Check {
	return Check{
		ServiceType: model.ServiceSSH,
		Probe: func(ctx context.Context) (string, error) {
			err := pool.WithClient(ctx, serviceUsername, serviceToken, func(*sshpool.Client) error {
				return nil
			})
			if err != nil {
				return "", trace.Wrap(err)
			}
			return "ssh session acquired", nil
		},
	}
}

// S3Check confirms the configured S3-compatible endpoint is reachable and
// credentials are valid by listing buckets, capped to a single result since
// the check only cares about reachability, not the bucket inventory.
func S3Check(client *s3.Client) Check {
	return Check{
		ServiceType: model.ServiceS3,
		Probe: func(ctx context.Context) (string, error) {
			_, err := client.ListBuckets(ctx, &s3.ListBucketsInput{MaxBuckets: aws.Int32(1)})
			if err != nil {
				return "", trace.Wrap(err)
			}
			return "s3 endpoint reachable", nil
		},
	}
}
