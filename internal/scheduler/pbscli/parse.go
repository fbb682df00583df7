package pbscli

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// parseDuration turns PBS's "HH:MM:SS" resource strings into seconds,
// mirroring PbsJobMetadata's model._parse_duration validator.
func parseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, trace.BadParameter("invalid duration string: %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, trace.BadParameter("invalid duration string: %q", s)
	}
	return int64(h*3600 + m*60 + sec), nil
}

// pbsCtimeLayout matches PBS's "Wed May 14 11:52:02 2025" timestamp format.
const pbsCtimeLayout = "Mon Jan 2 15:04:05 2006"

// parsePBSTimestamp turns a PBS ctime string into a UNIX epoch second,
// mirroring models.py's parse_timestamp.
func parsePBSTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(pbsCtimeLayout, s)
	if err != nil {
		return 0, trace.Wrap(err, "parsing PBS timestamp %q", s)
	}
	return t.Unix(), nil
}

var memoryUnitSuffix = regexp.MustCompile(`(?i)^(\d+)(kb|mb|gb|tb|pb)$`)

// parsePBSMemory turns a PBS memory string like "16gb" into bytes, mirroring
// PbsNode's free_memory/alloc_memory validator.
func parsePBSMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	m := memoryUnitSuffix.FindStringSubmatch(s)
	if m == nil {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, trace.BadParameter("invalid PBS memory string: %q", s)
		}
		return v, nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, trace.BadParameter("invalid PBS memory string: %q", s)
	}
	zeros := map[string]int64{"kb": 3, "mb": 6, "gb": 9, "tb": 12, "pb": 15}[strings.ToLower(m[2])]
	for i := int64(0); i < zeros; i++ {
		n *= 10
	}
	return n, nil
}

var nodeRangePattern = regexp.MustCompile(`^([^\[]+)\[(\d+)-(\d+)\]$`)

// expandNodeList turns PBS's exec_host string ("nid[001-004]/0+nid005/0")
// into a flat, comma-separated node list, mirroring PbsJob._parse_nodelist.
func expandNodeList(execHost string) string {
	if execHost == "" {
		return ""
	}
	var nodes []string
	for _, chunk := range strings.Split(execHost, "+") {
		host := strings.SplitN(chunk, "/", 2)[0]
		m := nodeRangePattern.FindStringSubmatch(host)
		if m == nil {
			nodes = append(nodes, host)
			continue
		}
		prefix, start, end := m[1], m[2], m[3]
		width := len(start)
		lo, _ := strconv.Atoi(start)
		hi, _ := strconv.Atoi(end)
		for i := lo; i <= hi; i++ {
			nodes = append(nodes, prefix+zeroPad(i, width))
		}
	}
	return strings.Join(nodes, ",")
}

func zeroPad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// stripClusterPrefix removes a PBS path's leading "cluster:" prefix, e.g.
// "pbs:/home/user/out.o1" -> "/home/user/out.o1", mirroring
// PbsJobMetadata._parse_pbs_path.
func stripClusterPrefix(path string) string {
	idx := strings.Index(path, ":")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// qstatBlock is one "Job Id: ..." paragraph of `qstat -f` output, parsed
// into its key=value attribute lines.
type qstatBlock struct {
	jobID string
	attrs map[string]string
}

func parseQstatBlocks(stdout string) []qstatBlock {
	var blocks []qstatBlock
	for i, raw := range strings.Split(strings.TrimSpace(stdout), "\nJob Id:") {
		if i > 0 {
			raw = "Job Id:" + raw
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		block := qstatBlock{attrs: map[string]string{}}
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Job Id:") {
				full := strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
				block.jobID = strings.SplitN(full, ".", 2)[0]
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if _, exists := block.attrs[key]; exists {
				continue
			}
			block.attrs[key] = strings.TrimSpace(parts[1])
		}
		blocks = append(blocks, block)
	}
	return blocks
}
