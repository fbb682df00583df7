package fsops

import (
	"fmt"
	"strings"

	"github.com/gravitational/trace"
)

// StatResult is the normalized numeric `stat` result.
type StatResult struct {
	Mode  uint64 `json:"mode"`
	Ino   uint64 `json:"ino"`
	Dev   uint64 `json:"dev"`
	Nlink uint64 `json:"nlink"`
	UID   uint64 `json:"uid"`
	GID   uint64 `json:"gid"`
	Size  int64  `json:"size"`
	Atime int64  `json:"atime"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
}

// statFormat asks coreutils `stat` for exactly the fields StatResult needs,
// tab-separated so parsing doesn't need to guess field widths.
const statFormat = "%f\t%i\t%d\t%h\t%u\t%g\t%s\t%X\t%Z\t%Y"

// Stat builds the `stat` command.
type Stat struct {
	Path        string
	Dereference bool
}

func NewStat(path string, dereference bool) *Stat {
	return &Stat{Path: path, Dereference: dereference}
}

func (s *Stat) Render() string {
	flag := ""
	if s.Dereference {
		flag = "-L "
	}
	return withTimeout(fmt.Sprintf("stat %s--format=%s -- %s", flag, quote(statFormat), quote(s.Path)))
}

func (s *Stat) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	fields := strings.Split(strings.TrimSpace(string(stdout)), "\t")
	if len(fields) != 10 {
		return nil, trace.Errorf("unexpected stat output: %q", string(stdout))
	}
	mode, err := parseHex(fields[0])
	if err != nil {
		return nil, trace.Wrap(err)
	}
	ino, _ := parseUint(fields[1])
	dev, _ := parseUint(fields[2])
	nlink, _ := parseUint(fields[3])
	uid, _ := parseUint(fields[4])
	gid, _ := parseUint(fields[5])
	size, _ := parseInt64(fields[6])
	atime, _ := parseInt64(fields[7])
	ctime, _ := parseInt64(fields[8])
	mtime, _ := parseInt64(fields[9])
	return &StatResult{
		Mode: mode, Ino: ino, Dev: dev, Nlink: nlink,
		UID: uid, GID: gid, Size: size,
		Atime: atime, Ctime: ctime, Mtime: mtime,
	}, nil
}

func parseHex(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%x", &v)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return v, nil
}
