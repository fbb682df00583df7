package fsops

import (
	"fmt"
	"strings"
)

// Checksum builds the `sha256sum` command, returning the hex digest.
type Checksum struct{ Path string }

func NewChecksum(path string) *Checksum { return &Checksum{Path: path} }

func (c *Checksum) Render() string {
	return withTimeout(fmt.Sprintf("sha256sum -- %s", quote(c.Path)))
}

func (c *Checksum) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	fields := strings.Fields(string(stdout))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// FileType builds the `file` command, returning its textual type tag.
type FileType struct{ Path string }

func NewFileType(path string) *FileType { return &FileType{Path: path} }

func (f *FileType) Render() string {
	return withTimeout(fmt.Sprintf("file -b -- %s", quote(f.Path)))
}

func (f *FileType) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return strings.TrimSpace(string(stdout)), nil
}
