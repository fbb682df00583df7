package mediator

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/transfer"
)

// Transfer is the mediator surface backing
// `/filesystem/{system}/transfer/*`: it dispatches upload/download to
// whichever transfer.Method the caller's transferMethod discriminator
// names, and cp/mv/rm/compress/extract to the per-system CoreUtils running
// over the caller's own scheduler client. The methods/coreUtils maps are
// built once at startup (cmd/firecrest-gateway) from each cluster's
// configured storage/wormhole/streamer settings, mirroring how Compute and
// Filesystem receive their already-wired SchedulerFactory and
// sshpool.Pool rather than constructing backends themselves.
type Transfer struct {
	registry  *Registry
	sched     *SchedulerFactory
	methods   map[string]map[model.TransferMethod]transfer.Method
	coreUtils map[string]*transfer.CoreUtils
}

func NewTransfer(registry *Registry, sched *SchedulerFactory, methods map[string]map[model.TransferMethod]transfer.Method, coreUtils map[string]*transfer.CoreUtils) *Transfer {
	return &Transfer{registry: registry, sched: sched, methods: methods, coreUtils: coreUtils}
}

func (t *Transfer) resolve(system string) (*model.Cluster, error) {
	cluster, err := t.registry.Resolve(system)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := Gate(cluster, model.ServiceFilesystem); err != nil {
		return nil, err
	}
	return cluster, nil
}

func (t *Transfer) method(system string, m model.TransferMethod) (transfer.Method, error) {
	byMethod, ok := t.methods[system]
	if !ok {
		return nil, trace.NotFound("no such system %q", system)
	}
	impl, ok := byMethod[m]
	if !ok {
		return nil, trace.NotImplemented("transfer method %q is not configured for this system", m)
	}
	return impl, nil
}

func (t *Transfer) coreUtilsFor(system string) (*transfer.CoreUtils, error) {
	c, ok := t.coreUtils[system]
	if !ok {
		return nil, trace.NotFound("no such system %q", system)
	}
	return c, nil
}

// Upload produces a TransferOperation moving size bytes from the caller
// onto path, via the transferDirectives-selected method. code carries the
// wormhole handshake code when method is wormhole; it is ignored otherwise.
func (t *Transfer) Upload(ctx context.Context, system, username, accessToken, path string, size int64, account string, method model.TransferMethod, code string) (*model.TransferOperation, error) {
	if _, err := t.resolve(system); err != nil {
		return nil, err
	}
	impl, err := t.method(system, method)
	if err != nil {
		return nil, err
	}
	op, err := impl.Upload(ctx, transfer.Location{System: system, Path: path, Size: size, Code: code}, username, accessToken, account)
	return op, trace.Wrap(err)
}

// Download produces a TransferOperation moving the file at path off the
// cluster, via the transferDirectives-selected method.
func (t *Transfer) Download(ctx context.Context, system, username, accessToken, path, account string, method model.TransferMethod) (*model.TransferOperation, error) {
	if _, err := t.resolve(system); err != nil {
		return nil, err
	}
	impl, err := t.method(system, method)
	if err != nil {
		return nil, err
	}
	op, err := impl.Download(ctx, transfer.Location{System: system, Path: path}, username, accessToken, account)
	return op, trace.Wrap(err)
}

func (t *Transfer) Move(ctx context.Context, system, username, accessToken, sourcePath, targetPath string) (model.TransferJob, error) {
	cluster, err := t.resolve(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	c, err := t.coreUtilsFor(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	return c.Move(ctx, t.sched.For(cluster, username, accessToken), username, sourcePath, targetPath)
}

func (t *Transfer) Copy(ctx context.Context, system, username, accessToken, sourcePath, targetPath string) (model.TransferJob, error) {
	cluster, err := t.resolve(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	c, err := t.coreUtilsFor(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	return c.Copy(ctx, t.sched.For(cluster, username, accessToken), username, sourcePath, targetPath)
}

func (t *Transfer) Delete(ctx context.Context, system, username, accessToken, path string) (model.TransferJob, error) {
	cluster, err := t.resolve(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	c, err := t.coreUtilsFor(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	return c.Delete(ctx, t.sched.For(cluster, username, accessToken), username, path)
}

func (t *Transfer) Compress(ctx context.Context, system, username, accessToken, source, target, matchPattern string, dereference bool, compression fsops.Compression) (model.TransferJob, error) {
	cluster, err := t.resolve(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	c, err := t.coreUtilsFor(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	return c.Compress(ctx, t.sched.For(cluster, username, accessToken), username, source, target, matchPattern, dereference, compression)
}

func (t *Transfer) Extract(ctx context.Context, system, username, accessToken, source, target string, compression fsops.Compression) (model.TransferJob, error) {
	cluster, err := t.resolve(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	c, err := t.coreUtilsFor(system)
	if err != nil {
		return model.TransferJob{}, err
	}
	return c.Extract(ctx, t.sched.For(cluster, username, accessToken), username, source, target, compression)
}
