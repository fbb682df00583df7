// Package fsops implements the filesystem Command objects: small value
// types pairing a rendered shell string with a stdout/stderr/exit parser.
// Every command wraps its utility in `timeout N` so a hung remote process
// cannot pin an SSH channel past the pool's execute_timeout.
package fsops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// DefaultUtilityTimeout is the `timeout N` wrapper applied to every
// rendered command.
const DefaultUtilityTimeout = 5

// Command is the small value object every filesystem operation implements:
// render a shell command line, and parse its captured output.
type Command interface {
	// Render returns the full shell command line to execute, already
	// wrapped in `timeout N ...` where applicable.
	Render() string
	// Parse turns captured stdout/stderr/exit status into the operation's
	// normalized result, or a classified error.
	Parse(stdout, stderr []byte, exitStatus int) (any, error)
}

// quote shell-single-quotes a path or argument, escaping embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func withTimeout(cmd string) string {
	return fmt.Sprintf("timeout %d %s", DefaultUtilityTimeout, cmd)
}

// Chained composes two commands into one shell pipeline joined by `&&`,
// delegating Parse to the second command: used for chmod+ls, chown+ls,
// mkdir+ls, symlink+ls.
type Chained struct {
	First, Second Command
}

func (c Chained) Render() string {
	return c.First.Render() + " && " + c.Second.Render()
}

func (c Chained) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	return c.Second.Parse(stdout, stderr, exitStatus)
}

// classifyStderr maps common coreutils stderr fragments to the taxonomy's
// typed errors; anything unrecognized bubbles up as a generic command
// error carrying the stderr text, which the mediator maps to 502.
func classifyStderr(stderr string, exitStatus int) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no such file"):
		return trace.NotFound("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "permission denied"):
		return trace.AccessDenied("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "not a directory"):
		return trace.BadParameter("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "file exists"):
		return trace.AlreadyExists("%s", strings.TrimSpace(stderr))
	case strings.Contains(lower, "is a directory"):
		return trace.BadParameter("%s", strings.TrimSpace(stderr))
	default:
		return trace.Wrap(&commandError{exitStatus: exitStatus, stderr: strings.TrimSpace(stderr)})
	}
}

// commandError is the generic, unclassified command failure: exit != 0 but
// stderr didn't match any of the documented fragments.
type commandError struct {
	exitStatus int
	stderr     string
}

func (e *commandError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("command exited with status %d", e.exitStatus)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.exitStatus, e.stderr)
}

func (e *commandError) OrigError() error { return e }

// IsConnectionProblemError makes trace.IsConnectionProblem match an
// unclassified command failure, so it maps to 502.
func (e *commandError) IsConnectionProblemError() bool { return true }

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return v, nil
}

func parseInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return v, nil
}
