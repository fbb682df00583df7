package pbscli

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// pbsnodesCommand runs `pbsnodes -a` and parses its blank-line-delimited,
// indented attribute blocks, grounded on pbsnodes_command.py.
type pbsnodesCommand struct{}

func (c *pbsnodesCommand) Render() string {
	return "/opt/pbs/bin/pbsnodes -a"
}

func (c *pbsnodesCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}

	var nodes []model.Node
	var name, state string
	var cpus int
	var memoryMB int64

	flush := func() {
		if name == "" {
			return
		}
		nodes = append(nodes, model.Node{Name: name, State: state, CPUs: cpus, MemoryMB: memoryMB})
		name, state = "", ""
		cpus = 0
		memoryMB = 0
	}

	for _, line := range strings.Split(string(stdout), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			flush()
			name = strings.TrimSpace(line)
			continue
		}
		parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, val := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch key {
		case "state":
			state = val
		case "np":
			cpus, _ = strconv.Atoi(val)
		case "phys_memory", "resources_available.mem":
			if bytes, err := parsePBSMemory(val); err == nil {
				memoryMB = bytes / (1024 * 1024)
			}
		}
	}
	flush()
	return nodes, nil
}

// Nodes lists compute nodes via `pbsnodes -a`.
func (c *Client) Nodes(ctx context.Context) ([]model.Node, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &pbsnodesCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Node), nil
}

// pingCommand runs `qstat -Bf` (server status) and treats an Active server
// as healthy, grounded on ping_command.py.
type pingCommand struct{}

func (c *pingCommand) Render() string {
	return "/opt/pbs/bin/qstat -Bf"
}

var pbsServerHeader = regexp.MustCompile(`^Server:\s+(\S+)`)
var pbsServerState = regexp.MustCompile(`^\s*server_state\s*=\s*(\S+)`)

func (c *pingCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	var hostname string
	var active bool
	found := false
	for _, line := range strings.Split(string(stdout), "\n") {
		if m := pbsServerHeader.FindStringSubmatch(line); m != nil {
			hostname = m[1]
			found = true
			continue
		}
		if m := pbsServerState.FindStringSubmatch(line); m != nil {
			active = m[1] == "Active"
		}
	}
	if !found {
		return nil, trace.ConnectionProblem(nil, "qstat -Bf returned no server status")
	}
	if !active {
		return nil, trace.ConnectionProblem(nil, "PBS server %s is not active", hostname)
	}
	return nil, nil
}

// Ping runs `qstat -Bf` and fails unless the server reports Active.
func (c *Client) Ping(ctx context.Context) error {
	return c.withClient(ctx, func(client *sshpool.Client) error {
		_, err := client.Execute(ctx, &pingCommand{}, nil)
		return err
	})
}

// queueListCommand lists PBS queues via `qstat -F json -f -Q`, grounded on
// pbs_partitions_command.py.
type queueListCommand struct{}

func (c *queueListCommand) Render() string {
	return "qstat -F json -f -Q"
}

func (c *queueListCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyPBSError(string(stderr), exitStatus)
	}
	var raw struct {
		Queue map[string]struct {
			QueueType string `json:"queue_type"`
			Enabled   bool   `json:"enabled"`
			Started   bool   `json:"started"`
			TotalJobs int    `json:"total_jobs"`
		} `json:"Queue"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding qstat -F json -Q output")
	}
	out := make([]model.Partition, 0, len(raw.Queue))
	for name, q := range raw.Queue {
		state := "disabled&stopped"
		switch {
		case q.Enabled && q.Started:
			state = "enabled&started"
		case q.Enabled:
			state = "enabled&stopped"
		case q.Started:
			state = "disabled&started"
		}
		out = append(out, model.Partition{Name: name, State: state})
	}
	return out, nil
}

// Partitions lists PBS queues via `qstat -F json -f -Q`.
func (c *Client) Partitions(ctx context.Context) ([]model.Partition, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &queueListCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Partition), nil
}

// Reservations: the original PBS CLI client's reservation listing
// (QstatReservationsCommand) was left commented out / unimplemented
// upstream, so this backend reports the same gap explicitly rather than
// guessing at a qstat invocation nothing exercises.
func (c *Client) Reservations(ctx context.Context) ([]model.Reservation, error) {
	return nil, trace.NotImplemented("reservation listing is not supported by the PBS CLI backend")
}
