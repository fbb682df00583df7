package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
)

// CoreUtils submits the filesystem operations large enough to need a
// scheduler job rather than a direct SSH command: move, copy, delete,
// compress and extract.
// Running coreutils under sbatch instead of over the interactive SSH
// session means a multi-terabyte `cp` doesn't tie up a pooled connection.
type CoreUtils struct {
	WorkDir    string
	Directives []string
	SystemName string
}

func NewCoreUtils(workDir, systemName string, directives []string) *CoreUtils {
	return &CoreUtils{WorkDir: workDir, Directives: directives, SystemName: systemName}
}

func (c *CoreUtils) submit(ctx context.Context, sched scheduler.Client, username, jobName, script string) (model.TransferJob, error) {
	helper := NewJobHelper(fmt.Sprintf("%s/%s", c.WorkDir, username), script, jobName)
	return helper.Submit(ctx, sched, c.SystemName)
}

// quote shell-single-quotes an argument, matching fsops' quoting so the
// rendered job scripts look like the rest of the cluster-side commands.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tarCompressCommand(source, target, matchPattern string, dereference bool, compression fsops.Compression) string {
	flags := "c" + tarFlag(compression) + "vf"
	options := ""
	if dereference {
		options = "--dereference "
	}
	if matchPattern != "" {
		sourceDir := filepath.Dir(source)
		return fmt.Sprintf(
			"cd %s && find . -type f -regex %s -print0 | tar %s--null --files-from - -%s %s",
			quote(sourceDir), quote(matchPattern), options, flags, quote(target),
		)
	}
	sourceDir := filepath.Dir(source)
	sourceFile := filepath.Base(source)
	return fmt.Sprintf("tar %s-%s %s -C %s %s", options, flags, quote(target), quote(sourceDir), quote(sourceFile))
}

func tarExtractCommand(source, target string, compression fsops.Compression) string {
	flags := "x" + tarFlag(compression) + "vf"
	return fmt.Sprintf("tar -%s %s -C %s", flags, quote(source), quote(target))
}

func tarFlag(c fsops.Compression) string {
	switch c {
	case fsops.CompressionGzip:
		return "z"
	case fsops.CompressionBzip2:
		return "j"
	case fsops.CompressionXz:
		return "J"
	default:
		return ""
	}
}

// Move submits an `mv` job relocating sourcePath to targetPath.
func (c *CoreUtils) Move(ctx context.Context, sched scheduler.Client, username, sourcePath, targetPath string) (model.TransferJob, error) {
	directives, err := FormatDirectives(c.Directives, "")
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	script, err := RenderScript("slurm_job_move.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"source_path":       sourcePath,
		"target_path":       targetPath,
	})
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return c.submit(ctx, sched, username, "MoveFiles", script)
}

// Copy submits a `cp -r` job duplicating sourcePath to targetPath.
func (c *CoreUtils) Copy(ctx context.Context, sched scheduler.Client, username, sourcePath, targetPath string) (model.TransferJob, error) {
	directives, err := FormatDirectives(c.Directives, "")
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	script, err := RenderScript("slurm_job_copy.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"source_path":       sourcePath,
		"target_path":       targetPath,
	})
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return c.submit(ctx, sched, username, "CopyFiles", script)
}

// Delete submits an `rm -rf` job removing path.
func (c *CoreUtils) Delete(ctx context.Context, sched scheduler.Client, username, path string) (model.TransferJob, error) {
	directives, err := FormatDirectives(c.Directives, "")
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	script, err := RenderScript("slurm_job_delete.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"path":              path,
	})
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return c.submit(ctx, sched, username, "DeleteFiles", script)
}

// Compress submits a tar job archiving source into target, optionally
// filtering by matchPattern, mirroring fsops.Tar's render rules but without
// its 5-second interactive-command timeout.
func (c *CoreUtils) Compress(ctx context.Context, sched scheduler.Client, username, source, target, matchPattern string, dereference bool, compression fsops.Compression) (model.TransferJob, error) {
	directives, err := FormatDirectives(c.Directives, "")
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	script, err := RenderScript("slurm_job_compress.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"tar_command":       tarCompressCommand(source, target, matchPattern, dereference, compression),
	})
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return c.submit(ctx, sched, username, "CompressFiles", script)
}

// Extract submits a tar job unpacking source into target.
func (c *CoreUtils) Extract(ctx context.Context, sched scheduler.Client, username, source, target string, compression fsops.Compression) (model.TransferJob, error) {
	directives, err := FormatDirectives(c.Directives, "")
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	script, err := RenderScript("slurm_job_extract.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"tar_command":       tarExtractCommand(source, target, compression),
	})
	if err != nil {
		return model.TransferJob{}, trace.Wrap(err)
	}
	return c.submit(ctx, sched, username, "ExtractFiles", script)
}
