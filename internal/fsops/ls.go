package fsops

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/gravitational/trace"
)

// LsEntry is one row of an `ls` result.
type LsEntry struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	LinkTarget   string `json:"linkTarget,omitempty"`
	User         string `json:"user"`
	Group        string `json:"group"`
	Permissions  string `json:"permissions"`
	LastModified string `json:"lastModified"`
	Size         int64  `json:"size"`
}

// Ls lists a path's metadata using `ls -l`. When used standalone it returns
// []LsEntry; when chained after a mutation (chmod, chown, mkdir, symlink)
// it is pointed at a single path and Parse itself returns that path's
// single LsEntry instead of a slice.
type Ls struct {
	Path        string
	ShowHidden  bool
	NumericUID  bool
	Recursive   bool
	Dereference bool
	// singleTarget, if set, means this Ls was constructed to re-read the
	// state of one specific path after a mutation, and Parse should return
	// a single LsEntry rather than a slice.
	singleTarget bool
}

// NewLs builds a standalone `ls` command.
func NewLs(path string, showHidden, numericUID, recursive, dereference bool) *Ls {
	return &Ls{Path: path, ShowHidden: showHidden, NumericUID: numericUID, Recursive: recursive, Dereference: dereference}
}

// newLsSingle builds the re-read half of a chained mutate+ls pair.
func newLsSingle(path string) *Ls {
	return &Ls{Path: path, NumericUID: true, singleTarget: true}
}

func (l *Ls) Render() string {
	flags := "-l"
	if l.ShowHidden {
		flags += "a"
	}
	if l.Recursive {
		flags += "R"
	}
	if l.NumericUID {
		flags += " --numeric-uid-gid"
	}
	if l.Dereference {
		flags += " -L"
	}
	return withTimeout(fmt.Sprintf("ls %s -- %s", flags, quote(l.Path)))
}

func (l *Ls) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	entries, err := parseLsLong(string(stdout))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if l.singleTarget {
		if len(entries) == 0 {
			return nil, trace.NotFound("no output parsing ls result for %q", l.Path)
		}
		return entries[0], nil
	}
	return entries, nil
}

// parseLsLong parses `ls -l` output into LsEntry rows. It tolerates a
// leading "total N" line and directory headers from recursive listings.
func parseLsLong(output string) ([]LsEntry, error) {
	var entries []LsEntry
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "total ") || strings.HasSuffix(line, ":") {
			continue
		}
		fields := splitLsFields(line, 9)
		if len(fields) < 9 {
			continue
		}
		perms := fields[0]
		size, err := parseInt64(fields[4])
		if err != nil {
			continue
		}
		rest := fields[8]
		name, link := rest, ""
		if idx := strings.Index(rest, " -> "); idx >= 0 {
			name = rest[:idx]
			link = rest[idx+4:]
		}
		entries = append(entries, LsEntry{
			Name:         name,
			Type:         typeFromPerms(perms),
			LinkTarget:   link,
			User:         fields[2],
			Group:        fields[3],
			Permissions:  perms[1:],
			LastModified: strings.Join(fields[5:8], " "),
			Size:         size,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	return entries, nil
}

// splitLsFields splits an `ls -l` line into up to n fields on runs of
// whitespace, collapsing the alignment padding coreutils uses for
// right-justified numeric columns. The final field keeps any internal
// whitespace (needed for filenames containing spaces).
func splitLsFields(line string, n int) []string {
	fields := make([]string, 0, n)
	rest := line
	for i := 0; i < n-1; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			break
		}
		fields = append(fields, rest[:idx])
		rest = rest[idx:]
	}
	rest = strings.TrimLeft(rest, " \t")
	if rest != "" || len(fields) > 0 {
		fields = append(fields, rest)
	}
	return fields
}

func typeFromPerms(perms string) string {
	if perms == "" {
		return "file"
	}
	switch perms[0] {
	case 'd':
		return "directory"
	case 'l':
		return "symlink"
	default:
		return "file"
	}
}
