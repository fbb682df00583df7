package slurmcli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gravitational/trace"
)

// pingResult is one controller's response from `scontrol ping --json`.
type pingResult struct {
	Mode     string `json:"mode"`
	Hostname string `json:"hostname"`
	Pinged   bool   `json:"pinged"`
}

type scontrolPingCommand struct{}

func (c *scontrolPingCommand) Render() string {
	return "scontrol ping --json"
}

func (c *scontrolPingCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, trace.ConnectionProblem(nil, "scontrol ping failed: %s", string(stderr))
	}
	var raw struct {
		Pings []struct {
			Mode     string `json:"mode"`
			Hostname string `json:"hostname"`
			Pinged   string `json:"pinged"`
		} `json:"pings"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding scontrol ping output")
	}
	results := make([]pingResult, 0, len(raw.Pings))
	for _, p := range raw.Pings {
		results = append(results, pingResult{Mode: p.Mode, Hostname: p.Hostname, Pinged: p.Pinged == "UP"})
	}
	return results, nil
}

type scancelCommand struct {
	jobID int64
}

func (c *scancelCommand) Render() string {
	return fmt.Sprintf("scancel %d", c.jobID)
}

func (c *scancelCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	return nil, nil
}

// classifyCLIError maps common SLURM CLI stderr fragments to the error
// taxonomy, mirroring fsops.classifyStderr's approach for filesystem
// commands.
func classifyCLIError(stderr string, exitStatus int) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "invalid job id"):
		return trace.NotFound("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "access/permission denied"):
		return trace.AccessDenied("%s", strings.TrimSpace(stderr))
	default:
		return trace.Errorf("slurm command exited %d: %s", exitStatus, strings.TrimSpace(stderr))
	}
}

// formatAttachCommand renders the `sattach` invocation used to join a
// running job's first step.
func formatAttachCommand(jobID int64, entrypoint string) string {
	if entrypoint == "" {
		entrypoint = "0"
	}
	return fmt.Sprintf("sattach %d.%s", jobID, entrypoint)
}
