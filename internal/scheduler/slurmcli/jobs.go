package slurmcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// sbatchCommand renders an sbatch invocation from a JobDescription. A
// ScriptPath is passed as sbatch's argument; otherwise the inline script is
// fed to sbatch's stdin through a heredoc, since sbatch needs either a
// script path or stdin -- it doesn't take an inline script argument.
type sbatchCommand struct {
	desc model.JobDescription
}

func (c *sbatchCommand) Render() string {
	var b strings.Builder
	b.WriteString("sbatch --parsable")
	if c.desc.Name != "" {
		fmt.Fprintf(&b, " --job-name=%s", quoteArg(c.desc.Name))
	}
	if c.desc.WorkingDirectory != "" {
		fmt.Fprintf(&b, " --chdir=%s", quoteArg(c.desc.WorkingDirectory))
	}
	if c.desc.StandardOutput != "" {
		fmt.Fprintf(&b, " --output=%s", quoteArg(c.desc.StandardOutput))
	}
	if c.desc.StandardError != "" {
		fmt.Fprintf(&b, " --error=%s", quoteArg(c.desc.StandardError))
	}
	if c.desc.Account != "" {
		fmt.Fprintf(&b, " --account=%s", quoteArg(c.desc.Account))
	}
	if c.desc.ScriptPath != "" {
		fmt.Fprintf(&b, " %s", quoteArg(c.desc.ScriptPath))
		return b.String()
	}
	fmt.Fprintf(&b, " <<'FIRECREST_EOF'\n%s\nFIRECREST_EOF", c.desc.Script)
	return b.String()
}

func quoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (c *sbatchCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	field := strings.TrimSpace(strings.SplitN(string(stdout), ";", 2)[0])
	var jobID int64
	if _, err := fmt.Sscanf(field, "%d", &jobID); err != nil {
		return nil, trace.Wrap(err, "parsing sbatch output %q", string(stdout))
	}
	return jobID, nil
}

// SubmitJob runs sbatch over the pooled SSH connection.
func (c *Client) SubmitJob(ctx context.Context, desc model.JobDescription) (int64, error) {
	if desc.Script == "" && desc.ScriptPath == "" {
		return 0, trace.BadParameter("job description must set exactly one of script or scriptPath")
	}
	var jobID int64
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &sbatchCommand{desc: desc}, nil)
		if err != nil {
			return err
		}
		jobID = res.(int64)
		return nil
	})
	if err == nil {
		log.WithField("job_id", jobID).Debug("submitted job via sbatch")
	}
	return jobID, trace.Wrap(err)
}

type scontrolJobCommand struct {
	jobID int64
}

func (c *scontrolJobCommand) Render() string {
	return fmt.Sprintf("scontrol show -o job %d --json", c.jobID)
}

type scontrolJobRecord struct {
	JobID          int64    `json:"job_id"`
	Name           string   `json:"name"`
	UserName       string   `json:"user_name"`
	Account        string   `json:"account"`
	Partition      string   `json:"partition"`
	Nodes          string   `json:"nodes"`
	JobState       []string `json:"job_state"`
	StateReason    string   `json:"state_reason"`
	StandardInput  string   `json:"standard_input"`
	StandardOutput string   `json:"standard_output"`
	StandardError  string   `json:"standard_error"`
	WorkDir        string   `json:"work_dir"`
}

func (c *scontrolJobCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		if strings.Contains(string(stderr), "Invalid job id specified") {
			return nil, trace.NotFound("job %d not found", c.jobID)
		}
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Jobs []scontrolJobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding scontrol show job output")
	}
	if len(raw.Jobs) == 0 {
		return nil, trace.NotFound("job %d not found", c.jobID)
	}
	return raw.Jobs[0], nil
}

// GetJob fetches a job's live state via `scontrol show job`. scontrol only
// knows about jobs still tracked by the controller (roughly the last few
// minutes after completion); GetJobMetadata falls back to sacct for
// historical detail.
func (c *Client) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &scontrolJobCommand{jobID: jobID}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	rec := result.(scontrolJobRecord)
	job := &model.Job{
		ID:               rec.JobID,
		Name:             rec.Name,
		User:             rec.UserName,
		Account:          rec.Account,
		Partition:        rec.Partition,
		Nodes:            rec.Nodes,
		WorkingDirectory: rec.WorkDir,
		Status: model.JobStatus{
			State:  normalizeJobState(rec.JobState),
			Reason: rec.StateReason,
		},
	}
	return job, nil
}

func normalizeJobState(states []string) model.JobState {
	if len(states) == 0 {
		return model.JobStateUnknown
	}
	switch states[0] {
	case "PENDING":
		return model.JobStatePending
	case "RUNNING", "COMPLETING", "CONFIGURING", "SUSPENDED":
		return model.JobStateRunning
	case "COMPLETED":
		return model.JobStateCompleted
	case "CANCELLED":
		return model.JobStateCancelled
	case "FAILED", "NODE_FAIL", "OUT_OF_MEMORY", "BOOT_FAIL":
		return model.JobStateFailed
	case "TIMEOUT", "DEADLINE":
		return model.JobStateTimeout
	default:
		return model.JobStateUnknown
	}
}

// sacctCommand lists every job sacct still has accounting records for,
// filtered to the caller's own jobs by the -u flag, grounded on
// sacct_job_info_command.py's field list.
type sacctCommand struct {
	allUsers bool
	username string
}

func (c *sacctCommand) Render() string {
	cmd := "sacct --json --allocations"
	if !c.allUsers {
		cmd += " -u " + quoteArg(c.username)
	}
	return cmd
}

type sacctJobRecord struct {
	JobID     int64  `json:"job_id"`
	Name      string `json:"name"`
	User      string `json:"user"`
	Account   string `json:"account"`
	Partition string `json:"partition"`
	Nodes     string `json:"nodes"`
	WorkDir   string `json:"working_directory"`
	State     struct {
		Current []string `json:"current"`
		Reason  string   `json:"reason"`
	} `json:"state"`
	Time struct {
		Elapsed    int64 `json:"elapsed"`
		Submission int64 `json:"submission"`
		Start      int64 `json:"start"`
		End        int64 `json:"end"`
		Suspended  int64 `json:"suspended"`
		Limit      struct {
			Number int64 `json:"number"`
		} `json:"limit"`
	} `json:"time"`
}

func (c *sacctCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Jobs []sacctJobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding sacct output")
	}
	jobs := make([]model.Job, 0, len(raw.Jobs))
	for _, j := range raw.Jobs {
		jobs = append(jobs, model.Job{
			ID:               j.JobID,
			Name:             j.Name,
			User:             j.User,
			Account:          j.Account,
			Partition:        j.Partition,
			Nodes:            j.Nodes,
			WorkingDirectory: j.WorkDir,
			Status: model.JobStatus{
				State:  normalizeJobState(j.State.Current),
				Reason: j.State.Reason,
			},
			Times: model.JobTimes{
				Submit:    j.Time.Submission,
				Start:     j.Time.Start,
				End:       j.Time.End,
				Elapsed:   j.Time.Elapsed,
				Limit:     j.Time.Limit.Number,
				Suspended: j.Time.Suspended,
			},
		})
	}
	return jobs, nil
}

// GetJobs lists jobs via sacct, scoped server-side by -u unless allUsers.
func (c *Client) GetJobs(ctx context.Context, allUsers bool) ([]model.Job, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &sacctCommand{allUsers: allUsers, username: c.username}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Job), nil
}

type sacctMetadataCommand struct {
	jobID int64
}

func (c *sacctMetadataCommand) Render() string {
	return fmt.Sprintf("sacct --json --allocations -j %d --format='JobID,JobName,StdIn,StdOut,StdErr'", c.jobID)
}

func (c *sacctMetadataCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Jobs []struct {
			JobID  int64  `json:"job_id"`
			Name   string `json:"name"`
			Stdin  string `json:"stdin"`
			Stdout string `json:"stdout"`
			Stderr string `json:"stderr"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding sacct metadata output")
	}
	if len(raw.Jobs) == 0 {
		return nil, trace.NotFound("job %d not found", c.jobID)
	}
	j := raw.Jobs[0]
	return &model.JobMetadata{
		ID:             j.JobID,
		Name:           j.Name,
		StandardOutput: j.Stdout,
		StandardError:  j.Stderr,
	}, nil
}

// GetJobMetadata fetches the job's name and stdout/stderr paths via sacct,
// which keeps historical records scontrol has already dropped. The job
// script is not fetched.
func (c *Client) GetJobMetadata(ctx context.Context, jobID int64) (*model.JobMetadata, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &sacctMetadataCommand{jobID: jobID}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.(*model.JobMetadata), nil
}

// CancelJob is implemented in client.go.
