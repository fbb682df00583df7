package fsops

import (
	"fmt"
	"path/filepath"

	"github.com/gravitational/trace"
)

// Compression names a tar compression scheme.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionXz    Compression = "xz"
)

func (c Compression) tarFlag() string {
	switch c {
	case CompressionGzip:
		return "z"
	case CompressionBzip2:
		return "j"
	case CompressionXz:
		return "J"
	default:
		return ""
	}
}

// TarOperation discriminates Tar's direction.
type TarOperation string

const (
	TarCompress TarOperation = "compress"
	TarExtract  TarOperation = "extract"
)

// Tar builds the compress/extract command: compress supports an optional
// match_pattern that switches the render to a `find | tar --files-from -`
// pipeline instead of a plain `tar -C`.
type Tar struct {
	Source       string
	Target       string
	MatchPattern string
	Dereference  bool
	Compression  Compression
	Operation    TarOperation
}

func (t *Tar) Render() string {
	switch t.Operation {
	case TarExtract:
		return t.renderExtract()
	default:
		return t.renderCompress()
	}
}

func (t *Tar) renderCompress() string {
	flags := "c" + t.Compression.tarFlag() + "vf"
	options := ""
	if t.Dereference {
		options = "--dereference "
	}
	if t.MatchPattern != "" {
		sourceDir := filepath.Dir(t.Source)
		return withTimeout(fmt.Sprintf(
			"bash -c %s",
			quote(fmt.Sprintf(
				"cd %s && timeout %d find . -type f -regex %s -print0 | tar %s--null --files-from - -%s %s",
				quote(sourceDir), DefaultUtilityTimeout, quote(t.MatchPattern), options, flags, quote(t.Target),
			)),
		))
	}
	sourceDir := filepath.Dir(t.Source)
	sourceFile := filepath.Base(t.Source)
	return withTimeout(fmt.Sprintf("tar %s-%s %s -C %s %s", options, flags, quote(t.Target), quote(sourceDir), quote(sourceFile)))
}

func (t *Tar) renderExtract() string {
	flags := "x" + t.Compression.tarFlag() + "vf"
	return withTimeout(fmt.Sprintf("tar -%s %s -C %s", flags, quote(t.Source), quote(t.Target)))
}

func (t *Tar) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	return string(stdout), nil
}

// NewTarCompress builds a compress-direction Tar command.
func NewTarCompress(source, target, matchPattern string, dereference bool, compression Compression) (*Tar, error) {
	if source == "" || target == "" {
		return nil, trace.BadParameter("tar: source and target are required")
	}
	return &Tar{
		Source: source, Target: target, MatchPattern: matchPattern,
		Dereference: dereference, Compression: compression, Operation: TarCompress,
	}, nil
}

// NewTarExtract builds an extract-direction Tar command.
func NewTarExtract(source, target string, compression Compression) (*Tar, error) {
	if source == "" || target == "" {
		return nil, trace.BadParameter("tar: source and target are required")
	}
	return &Tar{Source: source, Target: target, Compression: compression, Operation: TarExtract}, nil
}
