package pbscli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// qsubCommand renders a qsub invocation, grounded on qsub_command.py: job
// environment is passed with -v KEY=VALUE,... (or -V to export everything
// when none is given), and the script is fed over stdin rather than as an
// argument.
type qsubCommand struct {
	desc model.JobDescription
}

func (c *qsubCommand) Render() string {
	var b strings.Builder
	b.WriteString("/opt/pbs/bin/qsub")
	if len(c.desc.Env) > 0 {
		pairs := make([]string, 0, len(c.desc.Env))
		for k, v := range c.desc.Env {
			pairs = append(pairs, k+"="+v)
		}
		fmt.Fprintf(&b, " -v %s", strings.Join(pairs, ","))
	} else {
		b.WriteString(" -V")
	}
	if c.desc.Name != "" {
		fmt.Fprintf(&b, " -N %s", quoteArg(c.desc.Name))
	}
	if c.desc.StandardError != "" {
		fmt.Fprintf(&b, " -e %s", quoteArg(c.desc.StandardError))
	}
	if c.desc.StandardOutput != "" {
		fmt.Fprintf(&b, " -o %s", quoteArg(c.desc.StandardOutput))
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

func (c *qsubCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	out := strings.TrimSpace(string(stdout))
	var digits strings.Builder
	for _, r := range out {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
	}
	if digits.Len() == 0 {
		return nil, trace.BadParameter("could not parse job id from qsub output %q", out)
	}
	jobID, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return jobID, nil
}

func classifyPBSError(stderr string, exitStatus int) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unknown job id"):
		return trace.NotFound("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "access"):
		return trace.AccessDenied("%s", strings.TrimSpace(stderr))
	default:
		return trace.Errorf("pbs command exited %d: %s", exitStatus, strings.TrimSpace(stderr))
	}
}

// SubmitJob runs qsub over the pooled SSH connection.
func (c *Client) SubmitJob(ctx context.Context, desc model.JobDescription) (int64, error) {
	if desc.Script == "" && desc.ScriptPath == "" {
		return 0, trace.BadParameter("job description must set exactly one of script or scriptPath")
	}
	var jobID int64
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &qsubCommand{desc: desc}, nil)
		if err != nil {
			return err
		}
		jobID = res.(int64)
		return nil
	})
	if err == nil {
		log.WithField("job_id", jobID).Debug("submitted job via qsub")
	}
	return jobID, trace.Wrap(err)
}

// qstatFullCommand runs `qstat -f [job_ids...]`, optionally scoped to
// specific job IDs, and parses the key=value block format documented by
// qstat_command.py.
type qstatFullCommand struct {
	jobIDs []string
}

func (c *qstatFullCommand) Render() string {
	cmd := []string{"/opt/pbs/bin/qstat", "-f"}
	cmd = append(cmd, c.jobIDs...)
	return strings.Join(cmd, " ")
}

func (c *qstatFullCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	blocks := parseQstatBlocks(string(stdout))
	jobs := make([]model.Job, 0, len(blocks))
	for _, b := range blocks {
		jobID, _ := strconv.ParseInt(b.jobID, 10, 64)
		exitCode := 0
		if v, ok := b.attrs["exit_status"]; ok {
			exitCode, _ = strconv.Atoi(v)
		}
		elapsed, _ := parseDuration(b.attrs["resources_used.walltime"])
		limit, _ := parseDuration(b.attrs["Resource_List.walltime"])
		start, _ := parsePBSTimestamp(b.attrs["stime"])

		user := ""
		if owner := b.attrs["Job_Owner"]; owner != "" {
			user = strings.SplitN(owner, "@", 2)[0]
		}

		job := model.Job{
			ID:               jobID,
			Name:             b.attrs["Job_Name"],
			User:             user,
			Account:          b.attrs["project"],
			Partition:        b.attrs["queue"],
			Nodes:            expandNodeList(b.attrs["exec_host"]),
			WorkingDirectory: b.attrs["jobdir"],
			Status: model.JobStatus{
				State:    normalizePBSState(b.attrs["job_state"]),
				ExitCode: &exitCode,
			},
			Times: model.JobTimes{
				Start:   start,
				Elapsed: elapsed,
				Limit:   limit,
			},
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func normalizePBSState(state string) model.JobState {
	switch state {
	case "Q":
		return model.JobStatePending
	case "R", "E", "S":
		return model.JobStateRunning
	case "F":
		return model.JobStateCompleted
	case "H":
		return model.JobStatePending
	default:
		return model.JobStateUnknown
	}
}

// GetJob fetches a single job's full record via `qstat -f <job_id>`.
func (c *Client) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &qstatFullCommand{jobIDs: []string{strconv.FormatInt(jobID, 10)}}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	jobs := result.([]model.Job)
	if len(jobs) == 0 {
		return nil, trace.NotFound("job %d not found", jobID)
	}
	return &jobs[0], nil
}

// GetJobs lists every job `qstat -f` reports; PBS's CLI has no server-side
// "mine only" filter so allUsers-vs-mine scoping happens client-side, same
// as the SLURM REST backend.
func (c *Client) GetJobs(ctx context.Context, allUsers bool) ([]model.Job, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &qstatFullCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	jobs := result.([]model.Job)
	if allUsers {
		return jobs, nil
	}
	filtered := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.User == c.username {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

// GetJobMetadata fetches Output_Path/Error_Path via `qstat -f`, stripping
// the leading "cluster:" prefix PBS prepends to those paths (mirroring
// PbsJobMetadata._parse_pbs_path). Note PBS swaps the two attribute names
// relative to their semantic meaning, as the original model's field aliases
// show (Output_Path -> standard_error, Error_Path -> standard_output); this
// client follows those aliases, so StandardOutput comes from Error_Path and
// StandardError from Output_Path.
func (c *Client) GetJobMetadata(ctx context.Context, jobID int64) (*model.JobMetadata, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &qstatMetadataCommand{jobID: jobID}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.(*model.JobMetadata), nil
}

type qstatMetadataCommand struct {
	jobID int64
}

func (c *qstatMetadataCommand) Render() string {
	return fmt.Sprintf("qstat -f %d", c.jobID)
}

func (c *qstatMetadataCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	blocks := parseQstatBlocks(string(stdout))
	if len(blocks) == 0 {
		return nil, trace.NotFound("job %d not found", c.jobID)
	}
	b := blocks[0]
	jobID, _ := strconv.ParseInt(b.jobID, 10, 64)
	return &model.JobMetadata{
		ID:             jobID,
		Name:           b.attrs["Job_Name"],
		StandardOutput: stripClusterPrefix(b.attrs["Error_Path"]),
		StandardError:  stripClusterPrefix(b.attrs["Output_Path"]),
	}, nil
}

type qdelCommand struct {
	jobID int64
}

func (c *qdelCommand) Render() string {
	return fmt.Sprintf("/opt/pbs/bin/qdel %d", c.jobID)
}

func (c *qdelCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	return nil, nil
}

// CancelJob runs `qdel <job_id>`.
func (c *Client) CancelJob(ctx context.Context, jobID int64) error {
	return c.withClient(ctx, func(client *sshpool.Client) error {
		_, err := client.Execute(ctx, &qdelCommand{jobID: jobID}, nil)
		return err
	})
}
