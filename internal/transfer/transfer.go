// Package transfer implements the Data-Transfer Orchestrator: it turns one
// of the three transfer methods (S3, wormhole, streamer) into a scheduler
// job that moves bytes between a cluster filesystem and the method's own
// channel, and hands back whatever directive the client needs next. One
// small interface, one package per method, mirroring how
// internal/scheduler splits by backend.
package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
)

// Location names one endpoint of a transfer: a path on a cluster
// filesystem, optionally with a known size (required for upload, where the
// orchestrator must pre-compute S3 multipart part counts).
type Location struct {
	System string
	Path   string
	Size   int64
	// Code carries a method-specific handshake value the caller already
	// holds when it is the one initiating the out-of-band side of the
	// transfer — e.g. the wormhole code that the external wormhole CLI
	// generated for the client's own "send" half of an Upload. Methods
	// that don't need one (S3, streamer) leave it unused.
	Code string
}

// Method is the interface every transfer backend (s3method, wormhole,
// streamer) implements. "Upload" moves bytes from the caller's machine onto
// the cluster filesystem (the cluster-side job receives); "Download" moves
// bytes from the cluster filesystem to the caller (the cluster-side job
// sends). Naming follows the client's point of view.
type Method interface {
	Upload(ctx context.Context, target Location, username, accessToken, account string) (*model.TransferOperation, error)
	Download(ctx context.Context, source Location, username, accessToken, account string) (*model.TransferOperation, error)
}

// JobHelper builds the scheduler JobDescription common to every transfer
// job: a fixed working directory, /dev/null stdin, and uniquely-named log
// files, grounded on datatransfer_base.py's JobHelper.
type JobHelper struct {
	WorkingDir string
	JobParam   model.JobDescription
}

// NewJobHelper builds a JobHelper for one transfer job.
func NewJobHelper(workingDir, script, jobName string) *JobHelper {
	id := uuid.New().String()
	return &JobHelper{
		WorkingDir: workingDir,
		JobParam: model.JobDescription{
			Name:             jobName,
			WorkingDirectory: workingDir,
			StandardInput:    "/dev/null",
			StandardOutput:   fmt.Sprintf("%s/.f7t_file_handling_job_%s.log", workingDir, id),
			StandardError:    fmt.Sprintf("%s/.f7t_file_handling_job_error_%s.log", workingDir, id),
			Env:              map[string]string{"PATH": "/bin:/usr/bin/:/usr/local/bin/"},
			Script:           script,
		},
	}
}

// Submit submits the job this helper describes and returns the normalized
// TransferJob half of a TransferOperation.
func (h *JobHelper) Submit(ctx context.Context, sched scheduler.Client, system string) (model.TransferJob, error) {
	jobID, err := sched.SubmitJob(ctx, h.JobParam)
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return model.TransferJob{
		JobID:            jobID,
		System:           system,
		WorkingDirectory: h.WorkingDir,
		Logs: model.TransferJobLogs{
			OutputLog: h.JobParam.StandardOutput,
			ErrorLog:  h.JobParam.StandardError,
		},
	}, nil
}

const (
	jobNameIngress = "IngressFileTransfer"
	jobNameEgress  = "OutgressFileTransfer"
)
