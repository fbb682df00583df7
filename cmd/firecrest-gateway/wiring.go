package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/eth-cscs/firecrest-v2/internal/config"
	"github.com/eth-cscs/firecrest-v2/internal/credential"
	"github.com/eth-cscs/firecrest-v2/internal/gateway"
	"github.com/eth-cscs/firecrest-v2/internal/health"
	"github.com/eth-cscs/firecrest-v2/internal/mediator"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
	"github.com/eth-cscs/firecrest-v2/internal/transfer"
	"github.com/eth-cscs/firecrest-v2/internal/transfer/s3method"
	"github.com/eth-cscs/firecrest-v2/internal/transfer/streamer"
	"github.com/eth-cscs/firecrest-v2/internal/transfer/wormhole"
)

// proberLoop is anything health.ClusterProber/StorageProber expose for the
// background goroutines wiring starts: one Loop per cluster (its S3 check
// included when a storage backend matches the cluster), all tied to the
// server's lifetime context.
type proberLoop interface {
	Loop(ctx context.Context)
}

// buildS3Client constructs one aws-sdk-go-v2 S3 client against endpoint
// using the storage backend's static credentials, the same
// config.LoadDefaultConfig + credentials.NewStaticCredentialsProvider +
// s3.NewFromConfig shape the rest of the pack's S3-backed services use
// (e.g. promote-terraform's newS3ClientFromBucketConfig). Path-style
// addressing is forced on since FirecREST's S3 backends are typically
// self-hosted (MinIO/Ceph) rather than AWS proper.
func buildS3Client(ctx context.Context, endpoint, accessKeyID, secretAccessKey, region string) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, trace.Wrap(err, "loading aws config for %s", endpoint)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// buildCredentialProvider picks the static or signing-service credential
// provider per settings.SSHCredentials, the one normalized shape
// internal/config resolved the dynamic YAML into.
func buildCredentialProvider(settings *config.Settings) (credential.Provider, error) {
	switch {
	case settings.SSHCredentials.SigningServiceURL != "":
		return credential.NewSigningService(
			settings.SSHCredentials.SigningServiceURL,
			settings.SSHCredentials.MaxConnections,
			config.DefaultConnectTimeout,
		), nil
	case len(settings.SSHCredentials.StaticKeys) > 0:
		return credential.NewStatic(settings.SSHCredentials.StaticKeys), nil
	default:
		return nil, trace.BadParameter("sshCredentials: neither a signing service nor static keys configured")
	}
}

// storageFor returns the StorageConfig matching cluster's name, matching
// FirecREST's one-storage-backend-per-system convention.
func storageFor(settings *config.Settings, clusterName string) (config.StorageConfig, bool) {
	for _, s := range settings.Storage {
		if s.Name == clusterName {
			return s, true
		}
	}
	return config.StorageConfig{}, false
}

// buildGateway wires config.Settings into a running gateway.Server plus
// the background health-prober loops the caller must start. It follows
// the mediator package's own layering: SchedulerFactory over per-cluster
// sshpool.Pool, Registry over Settings.Clusters, then Compute/Filesystem/
// Transfer over those, and finally internal/gateway.NewRouter over the
// whole mediator surface -- mirroring how internal/mediator's doc comment
// already describes Compute and Filesystem receiving their dependencies
// pre-wired rather than constructing backends themselves.
func buildGateway(ctx context.Context, settings *config.Settings) (*gateway.Server, []proberLoop, map[string]*sshpool.Pool, error) {
	creds, err := buildCredentialProvider(settings)
	if err != nil {
		return nil, nil, nil, trace.Wrap(err)
	}

	pools := make(map[string]*sshpool.Pool, len(settings.Clusters))
	for _, cluster := range settings.Clusters {
		pool, err := sshpool.NewFromModel(cluster.SSH, creds, clockwork.NewRealClock())
		if err != nil {
			return nil, nil, nil, trace.Wrap(err, "cluster %q: building ssh pool", cluster.Name)
		}
		pools[cluster.Name] = pool
	}

	schedFactory := mediator.NewSchedulerFactory(pools)
	registry := mediator.NewRegistry(settings.Clusters)
	compute := mediator.NewCompute(registry, schedFactory)

	maxOpsFileSize := int64(config.DefaultMaxOpsFileSize)
	if len(settings.Storage) > 0 && settings.Storage[0].MaxOpsFileSize > 0 {
		maxOpsFileSize = settings.Storage[0].MaxOpsFileSize
	}
	filesystem := mediator.NewFilesystem(registry, pools, maxOpsFileSize).WithSFTP(true)

	methods := make(map[string]map[model.TransferMethod]transfer.Method, len(settings.Clusters))
	coreUtils := make(map[string]*transfer.CoreUtils, len(settings.Clusters))
	var probers []proberLoop

	for _, cluster := range settings.Clusters {
		workDir := cluster.DefaultWorkDir()
		resolver := schedFactory.Resolver(cluster)

		mounts := make([]string, len(cluster.FileSystems))
		for i, fs := range cluster.FileSystems {
			mounts[i] = fs.Path
		}
		schedClient := schedFactory.For(cluster, cluster.ServiceAccount.ClientID, cluster.ServiceAccount.Secret)
		checks := []health.Check{
			health.SchedulerCheck(schedClient),
			health.SSHCheck(pools[cluster.Name], cluster.ServiceAccount.ClientID, cluster.ServiceAccount.Secret),
			health.FilesystemCheck(pools[cluster.Name], cluster.ServiceAccount.ClientID, cluster.ServiceAccount.Secret, mounts),
		}

		byMethod := make(map[model.TransferMethod]transfer.Method, 3)
		byMethod[model.TransferMethodWormhole] = wormhole.New(wormhole.Config{
			WorkDir:      workDir,
			Directives:   cluster.DatatransferJobsDirectives,
			SystemName:   cluster.Name,
			PyPIIndexURL: settings.DataTransfer.Wormhole.PyPIIndexURL,
		}, resolver)
		byMethod[model.TransferMethodStreamer] = streamer.New(streamer.Config{
			WorkDir:              workDir,
			Directives:           cluster.DatatransferJobsDirectives,
			SystemName:           cluster.Name,
			PyPIIndexURL:         settings.DataTransfer.Streamer.PyPIIndexURL,
			PortRangeStart:       settings.DataTransfer.Streamer.PortRangeStart,
			PortRangeEnd:         settings.DataTransfer.Streamer.PortRangeEnd,
			PublicIPs:            settings.DataTransfer.Streamer.PublicIPs,
			Host:                 settings.DataTransfer.Streamer.Host,
			WaitTimeoutSeconds:   int(settings.DataTransfer.Streamer.WaitTimeout.Seconds()),
			InboundTransferLimit: settings.DataTransfer.Streamer.InboundTransferLimit,
		}, resolver)

		if storageCfg, ok := storageFor(settings, cluster.Name); ok {
			private, err := buildS3Client(ctx, storageCfg.PrivateURL, storageCfg.AccessKeyID, storageCfg.SecretAccessKey, storageCfg.Region)
			if err != nil {
				return nil, nil, nil, trace.Wrap(err, "cluster %q: building private s3 client", cluster.Name)
			}
			public, err := buildS3Client(ctx, storageCfg.PublicURL, storageCfg.AccessKeyID, storageCfg.SecretAccessKey, storageCfg.Region)
			if err != nil {
				return nil, nil, nil, trace.Wrap(err, "cluster %q: building public s3 client", cluster.Name)
			}
			byMethod[model.TransferMethodS3] = s3method.New(s3method.Config{
				Private:       private,
				Public:        public,
				WorkDir:       workDir,
				Directives:    cluster.DatatransferJobsDirectives,
				MaxPartSize:   storageCfg.Multipart.MaxPartSize,
				UseSplit:      storageCfg.Multipart.UseSplit,
				ParallelRuns:  storageCfg.Multipart.ParallelRuns,
				TmpFolder:     storageCfg.Multipart.TmpFolder,
				Tenant:        storageCfg.Tenant,
				TTL:           storageCfg.TTL,
				SystemName:    cluster.Name,
				LifecycleDays: int32(storageCfg.BucketLifecycleConfiguration.Days),
			}, resolver, pools[cluster.Name])

			checks = append(checks, health.S3Check(private))
		}

		methods[cluster.Name] = byMethod
		coreUtils[cluster.Name] = transfer.NewCoreUtils(workDir, cluster.Name, cluster.DatatransferJobsDirectives)

		probers = append(probers, health.NewClusterProber(cluster, checks, clockwork.NewRealClock()))
	}

	xfer := mediator.NewTransfer(registry, schedFactory, methods, coreUtils)

	verifier, err := buildVerifier(settings)
	if err != nil {
		return nil, nil, nil, trace.Wrap(err)
	}

	server := &gateway.Server{
		Registry:   registry,
		Compute:    compute,
		Filesystem: filesystem,
		Transfer:   xfer,
		Pools:      pools,
		Verifier:   verifier,
	}
	return server, probers, pools, nil
}

func buildVerifier(settings *config.Settings) (gateway.TokenVerifier, error) {
	if len(settings.Auth.Authentication.PublicCerts) > 0 {
		return gateway.NewJWTVerifier(settings.Auth.Authentication.PublicCerts)
	}
	if settings.AppDebug {
		log.Warn("no auth.authentication.publicCerts configured; falling back to StaticVerifier (debug mode only)")
		return gateway.StaticVerifier{}, nil
	}
	return nil, trace.BadParameter("auth.authentication.publicCerts must be set outside of debug mode")
}

// runPrunes starts one background maintenance goroutine that prunes every
// cluster's pool once a minute.
func runPrunes(ctx context.Context, pools map[string]*sshpool.Pool) {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range pools {
					p.Prune()
				}
			}
		}
	}()
}
