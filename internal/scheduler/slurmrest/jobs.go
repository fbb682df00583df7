package slurmrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// restJob mirrors the subset of SLURM REST's job record this client reads.
// Field names follow slurm_rest_client.py's job dict keys.
type restJob struct {
	JobID                   int64            `json:"job_id"`
	Name                    string           `json:"name"`
	JobState                []string         `json:"job_state"`
	StateReason             string           `json:"state_reason"`
	ExitCode                *restExitCode    `json:"exit_code"`
	UserName                string           `json:"user_name"`
	Account                 string           `json:"account"`
	Partition               string           `json:"partition"`
	Nodes                   string           `json:"nodes"`
	CurrentWorkingDirectory string           `json:"current_working_directory"`
	StandardOutput          string           `json:"standard_output"`
	StandardError           string           `json:"standard_error"`
	SubmitTime              restNumberOrZero `json:"submit_time"`
	StartTime               restNumberOrZero `json:"start_time"`
	EndTime                 restNumberOrZero `json:"end_time"`
	TimeLimit               restNumberOrZero `json:"time_limit"`
	ElapsedTime             restNumberOrZero `json:"elapsed_time"`
	SuspendTime             restNumberOrZero `json:"suspend_time"`
}

// restNumberOrZero decodes SLURM REST's `{"set": bool, "number": int64}`
// wrapper used for every time-like field, falling back to a bare number.
type restNumberOrZero struct {
	Set    bool
	Number int64
}

func (n *restNumberOrZero) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '{' {
		var wrapped struct {
			Set    bool  `json:"set"`
			Number int64 `json:"number"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		n.Set, n.Number = wrapped.Set, wrapped.Number
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	n.Set, n.Number = true, v
	return nil
}

type restExitCode struct {
	ReturnCode restNumberOrZero `json:"return_code"`
	Signal     restNumberOrZero `json:"signal"`
}

func normalizeJobState(states []string) model.JobState {
	if len(states) == 0 {
		return model.JobStateUnknown
	}
	switch states[0] {
	case "PENDING":
		return model.JobStatePending
	case "RUNNING", "COMPLETING", "CONFIGURING":
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

func (j restJob) toModel() model.Job {
	var exitCode, signal *int
	if j.ExitCode != nil {
		if j.ExitCode.ReturnCode.Set {
			v := int(j.ExitCode.ReturnCode.Number)
			exitCode = &v
		}
		if j.ExitCode.Signal.Set {
			v := int(j.ExitCode.Signal.Number)
			signal = &v
		}
	}
	return model.Job{
		ID:               j.JobID,
		Name:             j.Name,
		User:             j.UserName,
		Account:          j.Account,
		Partition:        j.Partition,
		Nodes:            j.Nodes,
		WorkingDirectory: j.CurrentWorkingDirectory,
		Status: model.JobStatus{
			State:    normalizeJobState(j.JobState),
			Reason:   j.StateReason,
			ExitCode: exitCode,
			Signal:   signal,
		},
		Times: model.JobTimes{
			Submit:    j.SubmitTime.Number,
			Start:     j.StartTime.Number,
			End:       j.EndTime.Number,
			Elapsed:   j.ElapsedTime.Number,
			Limit:     j.TimeLimit.Number,
			Suspended: j.SuspendTime.Number,
		},
	}
}

// GetJob fetches a single job's normalized record.
func (c *Client) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/job/%d", jobID), nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Jobs []restJob `json:"jobs"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	if len(resp.Jobs) == 0 {
		return nil, trace.NotFound("job %d not found", jobID)
	}
	job := resp.Jobs[0].toModel()
	return &job, nil
}

// GetJobs lists jobs from the /jobs endpoint (every job the scheduler knows
// about), returned unfiltered when allUsers is true. The REST API
// has no native "mine only" filter, so when allUsers is false the
// caller-scoping happens client-side against the X-SLURM-USER-NAME identity
// this Client was constructed with.
func (c *Client) GetJobs(ctx context.Context, allUsers bool) ([]model.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs", nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Jobs []restJob `json:"jobs"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}

	jobs := make([]model.Job, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		m := j.toModel()
		if !allUsers && m.User != c.username {
			continue
		}
		jobs = append(jobs, m)
	}
	return jobs, nil
}

// GetJobMetadata fetches the job's name and stdout/stderr paths from its
// SLURM REST job record. The job script is not fetched.
func (c *Client) GetJobMetadata(ctx context.Context, jobID int64) (*model.JobMetadata, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/job/%d", jobID), nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Jobs []restJob `json:"jobs"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	if len(resp.Jobs) == 0 {
		return nil, trace.NotFound("job %d not found", jobID)
	}
	j := resp.Jobs[0]
	return &model.JobMetadata{
		ID:             j.JobID,
		Name:           j.Name,
		StandardOutput: j.StandardOutput,
		StandardError:  j.StandardError,
	}, nil
}

type restNode struct {
	Name       string   `json:"name"`
	State      []string `json:"state"`
	Partitions []string `json:"partitions"`
	CPUs       int      `json:"cpus"`
	RealMemory int64    `json:"real_memory"`
}

// Nodes lists compute nodes known to the scheduler.
func (c *Client) Nodes(ctx context.Context) ([]model.Node, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/nodes", nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Nodes []restNode `json:"nodes"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	nodes := make([]model.Node, 0, len(resp.Nodes))
	for _, n := range resp.Nodes {
		state := "UNKNOWN"
		if len(n.State) > 0 {
			state = strings.Join(n.State, "+")
		}
		nodes = append(nodes, model.Node{
			Name:       n.Name,
			State:      state,
			Partitions: n.Partitions,
			CPUs:       n.CPUs,
			MemoryMB:   n.RealMemory,
		})
	}
	return nodes, nil
}

type restPartition struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Nodes string `json:"nodes"`
}

// Partitions lists scheduler partitions/queues.
func (c *Client) Partitions(ctx context.Context) ([]model.Partition, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/partitions", nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Partitions []restPartition `json:"partitions"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	out := make([]model.Partition, 0, len(resp.Partitions))
	for _, p := range resp.Partitions {
		out = append(out, model.Partition{Name: p.Name, State: p.State, Nodes: p.Nodes})
	}
	return out, nil
}

type restReservation struct {
	Name      string           `json:"name"`
	Nodes     string           `json:"node_list"`
	StartTime restNumberOrZero `json:"start_time"`
	EndTime   restNumberOrZero `json:"end_time"`
	Users     string           `json:"users"`
}

// Reservations lists scheduler reservations.
func (c *Client) Reservations(ctx context.Context) ([]model.Reservation, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/reservations", nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp struct {
		Reservations []restReservation `json:"reservations"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	out := make([]model.Reservation, 0, len(resp.Reservations))
	for _, r := range resp.Reservations {
		var users []string
		if r.Users != "" {
			users = strings.Split(r.Users, ",")
		}
		out = append(out, model.Reservation{
			Name:      r.Name,
			Nodes:     r.Nodes,
			StartTime: r.StartTime.Number,
			EndTime:   r.EndTime.Number,
			Users:     users,
		})
	}
	return out, nil
}
