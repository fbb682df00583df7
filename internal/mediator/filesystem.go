package mediator

import (
	"bytes"
	"context"
	"io"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/apierr"
	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// Filesystem is the mediator surface backing `/filesystem/{system}/ops/*`:
// every operation runs one fsops.Command over the caller's pooled SSH
// client, after the availability gate and (for read/write endpoints) a
// max_ops_file_size check.
type Filesystem struct {
	registry       *Registry
	pools          map[string]*sshpool.Pool
	maxOpsFileSize int64
	// useSFTP enables the SFTP fast path for Download/Upload; when the
	// remote sshd doesn't offer the subsystem, both fall back to the
	// base64-over-exec path automatically.
	useSFTP bool
}

func NewFilesystem(registry *Registry, pools map[string]*sshpool.Pool, maxOpsFileSize int64) *Filesystem {
	return &Filesystem{registry: registry, pools: pools, maxOpsFileSize: maxOpsFileSize}
}

// WithSFTP enables the SFTP fast path for Download/Upload.
func (f *Filesystem) WithSFTP(enabled bool) *Filesystem {
	f.useSFTP = enabled
	return f
}

func (f *Filesystem) resolve(system string) (*model.Cluster, *sshpool.Pool, error) {
	cluster, err := f.registry.Resolve(system)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if err := Gate(cluster, model.ServiceFilesystem); err != nil {
		return nil, nil, err
	}
	return cluster, f.pools[cluster.Name], nil
}

// run acquires a pooled client and executes one command.
func (f *Filesystem) run(ctx context.Context, system, username, accessToken string, cmd fsops.Command, stdin []byte) (any, error) {
	_, pool, err := f.resolve(system)
	if err != nil {
		return nil, err
	}
	var result any
	err = pool.WithClient(ctx, username, accessToken, func(c *sshpool.Client) error {
		var reader io.Reader
		if stdin != nil {
			reader = bytes.NewReader(stdin)
		}
		r, execErr := c.Execute(ctx, cmd, reader)
		if execErr != nil {
			return execErr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result, nil
}

// checkSize enforces the max_ops_file_size limit shared by every
// read/write endpoint, returning PayloadTooLarge (413) when exceeded.
func (f *Filesystem) checkSize(size int64) error {
	if f.maxOpsFileSize > 0 && size > f.maxOpsFileSize {
		return apierr.PayloadTooLarge("requested size %d exceeds max_ops_file_size %d", size, f.maxOpsFileSize)
	}
	return nil
}

func (f *Filesystem) Ls(ctx context.Context, system, username, accessToken, path string, showHidden, numericUID, recursive, dereference bool) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewLs(path, showHidden, numericUID, recursive, dereference), nil)
}

func (f *Filesystem) Stat(ctx context.Context, system, username, accessToken, path string, dereference bool) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewStat(path, dereference), nil)
}

func (f *Filesystem) Head(ctx context.Context, system, username, accessToken, path string, bytesN, linesN *int64, skipTrailing bool) (any, error) {
	if err := fsops.ValidateHeadTail(bytesN, linesN); err != nil {
		return nil, err
	}
	return f.run(ctx, system, username, accessToken, &fsops.Head{Path: path, Bytes: bytesN, Lines: linesN, SkipTrailing: skipTrailing}, nil)
}

func (f *Filesystem) Tail(ctx context.Context, system, username, accessToken, path string, bytesN, linesN *int64, skipHeading bool) (any, error) {
	if err := fsops.ValidateHeadTail(bytesN, linesN); err != nil {
		return nil, err
	}
	return f.run(ctx, system, username, accessToken, &fsops.Tail{Path: path, Bytes: bytesN, Lines: linesN, SkipHeading: skipHeading}, nil)
}

func (f *Filesystem) View(ctx context.Context, system, username, accessToken, path string, size, offset int64) (any, error) {
	if offset < 0 {
		return nil, trace.BadParameter("offset must be >= 0")
	}
	if err := f.checkSize(size); err != nil {
		return nil, err
	}
	return f.run(ctx, system, username, accessToken, fsops.NewView(path, size, offset), nil)
}

func (f *Filesystem) Checksum(ctx context.Context, system, username, accessToken, path string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewChecksum(path), nil)
}

func (f *Filesystem) FileType(ctx context.Context, system, username, accessToken, path string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewFileType(path), nil)
}

func (f *Filesystem) Rm(ctx context.Context, system, username, accessToken, path string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewRm(path), nil)
}

func (f *Filesystem) Mkdir(ctx context.Context, system, username, accessToken, path string, parent bool) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewMkdir(path, parent), nil)
}

func (f *Filesystem) Symlink(ctx context.Context, system, username, accessToken, target, linkPath string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewSymlink(target, linkPath), nil)
}

func (f *Filesystem) Chmod(ctx context.Context, system, username, accessToken, path, mode string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewChmod(path, mode), nil)
}

func (f *Filesystem) Chown(ctx context.Context, system, username, accessToken, path, owner, group string) (any, error) {
	return f.run(ctx, system, username, accessToken, fsops.NewChown(path, owner, group), nil)
}

// Download returns the content of path, rejecting anything over
// max_ops_file_size (larger downloads must go through internal/transfer
// instead). Tries the SFTP fast path first when enabled, falling back to
// base64-over-exec if the remote has no SFTP subsystem.
func (f *Filesystem) Download(ctx context.Context, system, username, accessToken, path string) ([]byte, error) {
	statResult, err := f.Stat(ctx, system, username, accessToken, path, true)
	if err != nil {
		return nil, err
	}
	if stat, ok := statResult.(*fsops.StatResult); ok {
		if err := f.checkSize(stat.Size); err != nil {
			return nil, err
		}
	}

	if f.useSFTP {
		if content, err := f.downloadViaSFTP(ctx, system, username, accessToken, path); err == nil {
			return content, nil
		}
	}

	result, err := f.run(ctx, system, username, accessToken, fsops.NewBase64Download(path), nil)
	if err != nil {
		return nil, err
	}
	content, _ := result.([]byte)
	return content, nil
}

func (f *Filesystem) downloadViaSFTP(ctx context.Context, system, username, accessToken, path string) ([]byte, error) {
	_, pool, err := f.resolve(system)
	if err != nil {
		return nil, err
	}
	var content []byte
	err = pool.WithClient(ctx, username, accessToken, func(c *sshpool.Client) error {
		sc, err := c.SFTP()
		if err != nil {
			return err
		}
		defer sc.Close()
		content, err = fsops.SFTPDownload(sc, path)
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return content, nil
}

// Upload writes content to path, rejecting anything over
// max_ops_file_size. Tries the SFTP fast path first when enabled, falling
// back to base64-over-exec.
func (f *Filesystem) Upload(ctx context.Context, system, username, accessToken, path string, content []byte) (any, error) {
	if err := f.checkSize(int64(len(content))); err != nil {
		return nil, err
	}

	if f.useSFTP {
		if err := f.uploadViaSFTP(ctx, system, username, accessToken, path, content); err == nil {
			return nil, nil
		}
	}

	return f.run(ctx, system, username, accessToken, fsops.NewBase64Upload(path), fsops.EncodeUpload(content))
}

func (f *Filesystem) uploadViaSFTP(ctx context.Context, system, username, accessToken, path string, content []byte) error {
	_, pool, err := f.resolve(system)
	if err != nil {
		return err
	}
	err = pool.WithClient(ctx, username, accessToken, func(c *sshpool.Client) error {
		sc, err := c.SFTP()
		if err != nil {
			return err
		}
		defer sc.Close()
		return fsops.SFTPUpload(sc, path, content)
	})
	return trace.Wrap(err)
}

func (f *Filesystem) Compress(ctx context.Context, system, username, accessToken, source, target, matchPattern string, dereference bool, compression fsops.Compression) (any, error) {
	cmd, err := fsops.NewTarCompress(source, target, matchPattern, dereference, compression)
	if err != nil {
		return nil, err
	}
	return f.run(ctx, system, username, accessToken, cmd, nil)
}

func (f *Filesystem) Extract(ctx context.Context, system, username, accessToken, source, target string, compression fsops.Compression) (any, error) {
	cmd, err := fsops.NewTarExtract(source, target, compression)
	if err != nil {
		return nil, err
	}
	return f.run(ctx, system, username, accessToken, cmd, nil)
}
