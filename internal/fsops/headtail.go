package fsops

import (
	"fmt"

	"github.com/gravitational/trace"
)

// Head builds the `head` command: either the first N bytes or N lines of a
// file, optionally skipping trailing bytes/lines instead.
type Head struct {
	Path         string
	Bytes        *int64
	Lines        *int64
	SkipTrailing bool
}

func (h *Head) Render() string {
	flag, n, err := headTailFlag(h.Bytes, h.Lines, h.SkipTrailing)
	if err != nil {
		// Render must be infallible; validation happens before Render is
		// ever called (see fsops.Validate helpers used by the mediator).
		return "false"
	}
	return withTimeout(fmt.Sprintf("head %s%s -- %s", flag, n, quote(h.Path)))
}

func (h *Head) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return stdout, nil
}

// Tail builds the `tail` command, mirroring Head.
type Tail struct {
	Path        string
	Bytes       *int64
	Lines       *int64
	SkipHeading bool
}

func (t *Tail) Render() string {
	flag, n, err := headTailFlag(t.Bytes, t.Lines, t.SkipHeading)
	if err != nil {
		return "false"
	}
	return withTimeout(fmt.Sprintf("tail %s%s -- %s", flag, n, quote(t.Path)))
}

func (t *Tail) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return stdout, nil
}

// headTailFlag builds the `-c`/`-n` argument shared by head and tail,
// including the coreutils `+`/plain forms for "skip" semantics.
func headTailFlag(bytesN, linesN *int64, skip bool) (flag, value string, err error) {
	switch {
	case bytesN != nil && linesN != nil:
		return "", "", trace.BadParameter("specify either bytes or lines, not both")
	case bytesN != nil:
		flag = "-c "
		if skip {
			return flag, fmt.Sprintf("+%d", *bytesN+1), nil
		}
		return flag, fmt.Sprintf("%d", *bytesN), nil
	case linesN != nil:
		flag = "-n "
		if skip {
			return flag, fmt.Sprintf("+%d", *linesN+1), nil
		}
		return flag, fmt.Sprintf("%d", *linesN), nil
	default:
		return "-n ", "10", nil
	}
}

// ValidateHeadTail enforces that a caller must not supply both bytes and
// lines, returning BadParameter if they do.
func ValidateHeadTail(bytesN, linesN *int64) error {
	if bytesN != nil && linesN != nil {
		return trace.BadParameter("specify either bytes or lines, not both")
	}
	return nil
}
