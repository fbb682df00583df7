// Package s3method implements transfer.Method over an S3-compatible object
// store: the cluster-side job streams bytes to or from a per-user bucket,
// and the caller is handed presigned URLs to do its own half of the move,
// using aws-sdk-go-v2/service/s3's presign client.
package s3method

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
	"github.com/eth-cscs/firecrest-v2/internal/transfer"
)

var log = logrus.WithField("component", "s3method")

// Directive is the method-specific payload carried in
// model.TransferOperation.TransferDirective for an S3 transfer.
type Directive struct {
	TransferMethod    string   `json:"transferMethod"`
	DownloadURL       string   `json:"downloadUrl,omitempty"`
	PartsUploadURLs   []string `json:"partsUploadUrls,omitempty"`
	CompleteUploadURL string   `json:"completeUploadUrl,omitempty"`
	MaxPartSize       int64    `json:"maxPartSize,omitempty"`
}

// Config is the static configuration one FirecREST system's S3 transfer
// method is built from; one Config corresponds to one [storage] section of
// the system's YAML config.
type Config struct {
	// Private is used for operations FirecREST itself must be able to
	// perform against the bucket (create bucket, set lifecycle, presign
	// URLs consumed by the cluster-side job over an internal network).
	Private *s3.Client
	// Public is used to presign URLs handed back to the external caller,
	// which may need a different (publicly reachable) endpoint.
	Public *s3.Client

	WorkDir      string
	Directives   []string
	MaxPartSize  int64
	UseSplit     bool
	ParallelRuns int
	TmpFolder    string
	Tenant       string
	TTL          time.Duration
	SystemName   string

	LifecycleDays int32
}

// Method is the s3method implementation of transfer.Method.
type Method struct {
	cfg       Config
	scheduler scheduler.Resolver
	pool      *sshpool.Pool
}

func New(cfg Config, sched scheduler.Resolver, pool *sshpool.Pool) *Method {
	return &Method{cfg: cfg, scheduler: sched, pool: pool}
}

// bucketName is the actual S3 bucket backing a user's transfers: it is
// created, and every non-presign S3 call addresses it, under the plain
// username with no tenant prefix.
func (m *Method) bucketName(username string) string {
	return username
}

// presignBucketName is the bucket name embedded in a presigned URL. Only
// signing applies the tenant prefix, since the presigned request is what a
// multi-tenant S3 endpoint uses to route the call.
func (m *Method) presignBucketName(username string) string {
	if m.cfg.Tenant != "" {
		return fmt.Sprintf("%s:%s", m.cfg.Tenant, username)
	}
	return username
}

// ensureBucket creates the user's bucket and sets its lifecycle policy,
// tolerating a bucket that already exists (BucketAlreadyOwnedByYou): the
// lifecycle is only set on first creation, since re-applying it on every
// transfer would be a wasted API call.
func (m *Method) ensureBucket(ctx context.Context, bucket string) error {
	_, err := m.cfg.Private.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &bucket})
	if err == nil {
		_, lcErr := m.cfg.Private.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
			Bucket: &bucket,
			LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
				Rules: []s3types.LifecycleRule{{
					Status: s3types.ExpirationStatusEnabled,
					Expiration: &s3types.LifecycleExpiration{
						Days: &m.cfg.LifecycleDays,
					},
				}},
			},
		})
		if lcErr != nil {
			return trace.Wrap(lcErr)
		}
		return nil
	}
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	return trace.Wrap(err)
}

func partCount(size, maxPartSize int64) int64 {
	if maxPartSize <= 0 {
		return 1
	}
	return int64(math.Ceil(float64(size) / float64(maxPartSize)))
}

// Upload moves bytes from the caller into the cluster filesystem: the
// caller multipart-PUTs its data to a presigned S3 object, and the
// submitted job downloads it from S3 onto target.Path.
func (m *Method) Upload(ctx context.Context, target transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	bucket := m.bucketName(username)
	presignBucket := m.presignBucketName(username)
	objectName := fmt.Sprintf("%s/%s", uuid.New().String(), baseName(target.Path))

	if err := m.ensureBucket(ctx, bucket); err != nil {
		return nil, trace.Wrap(err)
	}

	createResp, err := m.cfg.Private.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &bucket,
		Key:    &objectName,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	uploadID := *createResp.UploadId

	publicPresign := s3.NewPresignClient(m.cfg.Public, s3.WithPresignExpires(m.cfg.TTL))
	privatePresign := s3.NewPresignClient(m.cfg.Private, s3.WithPresignExpires(m.cfg.TTL))

	parts := partCount(target.Size, m.cfg.MaxPartSize)
	partURLs := make([]string, 0, parts)
	for partNumber := int32(1); int64(partNumber) <= parts; partNumber++ {
		req, perr := publicPresign.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     &presignBucket,
			Key:        &objectName,
			UploadId:   &uploadID,
			PartNumber: &partNumber,
		})
		if perr != nil {
			return nil, trace.Wrap(perr)
		}
		partURLs = append(partURLs, req.URL)
	}

	completeReq, err := publicPresign.PresignCompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &presignBucket,
		Key:      &objectName,
		UploadId: &uploadID,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	downloadReq, err := privatePresign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &presignBucket, Key: &objectName})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	headReq, err := privatePresign.PresignHeadObject(ctx, &s3.HeadObjectInput{Bucket: &presignBucket, Key: &objectName})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	directives, err := transfer.FormatDirectives(m.cfg.Directives, account)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	script, err := transfer.RenderScript("slurm_job_downloader.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"download_head_url": headReq.URL,
		"download_url":      downloadReq.URL,
		"target_path":       target.Path,
		"max_part_size":     fmt.Sprintf("%d", m.cfg.MaxPartSize),
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	helper := transfer.NewJobHelper(fmt.Sprintf("%s/%s", m.cfg.WorkDir, username), script, "IngressFileTransfer")
	job, err := helper.Submit(ctx, m.scheduler.For(username, accessToken), target.System)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.WithField("job_id", job.JobID).Debug("submitted s3 upload job")
	return &model.TransferOperation{
		TransferJob: job,
		TransferDirective: Directive{
			TransferMethod:    "s3",
			PartsUploadURLs:   partURLs,
			CompleteUploadURL: completeReq.URL,
			MaxPartSize:       m.cfg.MaxPartSize,
		},
	}, nil
}

// Download moves bytes from the cluster filesystem to the caller: the
// submitted job multipart-PUTs source.Path to S3, and the caller is handed
// a presigned GET to retrieve the assembled object.
func (m *Method) Download(ctx context.Context, source transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	var size int64
	err := m.pool.WithClient(ctx, username, accessToken, func(c *sshpool.Client) error {
		res, statErr := c.Execute(ctx, fsops.NewStat(source.Path, true), nil)
		if statErr != nil {
			return trace.Wrap(statErr)
		}
		size = res.(*fsops.StatResult).Size
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	bucket := m.bucketName(username)
	presignBucket := m.presignBucketName(username)
	objectName := fmt.Sprintf("%s_%s", baseName(source.Path), uuid.New().String())

	if err := m.ensureBucket(ctx, bucket); err != nil {
		return nil, trace.Wrap(err)
	}

	createResp, err := m.cfg.Private.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &bucket,
		Key:    &objectName,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	uploadID := *createResp.UploadId

	privatePresign := s3.NewPresignClient(m.cfg.Private, s3.WithPresignExpires(m.cfg.TTL))

	parts := partCount(size, m.cfg.MaxPartSize)
	partURLs := make([]string, 0, parts)
	for partNumber := int32(1); int64(partNumber) <= parts; partNumber++ {
		req, perr := privatePresign.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     &presignBucket,
			Key:        &objectName,
			UploadId:   &uploadID,
			PartNumber: &partNumber,
		})
		if perr != nil {
			return nil, trace.Wrap(perr)
		}
		partURLs = append(partURLs, req.URL)
	}

	completeReq, err := privatePresign.PresignCompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &presignBucket,
		Key:      &objectName,
		UploadId: &uploadID,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	directives, err := transfer.FormatDirectives(m.cfg.Directives, account)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	partURLList := ""
	for i, u := range partURLs {
		if i > 0 {
			partURLList += " "
		}
		partURLList += fmt.Sprintf("%q", u)
	}
	script, err := transfer.RenderScript("slurm_job_uploader_multipart.sh.tmpl", map[string]any{
		"sbatch_directives":   directives,
		"F7T_MAX_PART_SIZE":   fmt.Sprintf("%d", m.cfg.MaxPartSize),
		"F7T_MP_USE_SPLIT":    m.cfg.UseSplit,
		"F7T_TMP_FOLDER":      fmt.Sprintf("%s/%s/", m.cfg.TmpFolder, uuid.New().String()),
		"F7T_MP_PARALLEL_RUN": m.cfg.ParallelRuns,
		"F7T_MP_PARTS_URL":    partURLList,
		"F7T_MP_NUM_PARTS":    len(partURLs),
		"F7T_MP_INPUT_FILE":   source.Path,
		"F7T_MP_COMPLETE_URL": completeReq.URL,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	helper := transfer.NewJobHelper(fmt.Sprintf("%s/%s", m.cfg.WorkDir, username), script, "OutgressFileTransfer")
	job, err := helper.Submit(ctx, m.scheduler.For(username, accessToken), m.cfg.SystemName)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	publicPresign := s3.NewPresignClient(m.cfg.Public, s3.WithPresignExpires(m.cfg.TTL))
	downloadReq, err := publicPresign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &presignBucket, Key: &objectName})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.WithField("job_id", job.JobID).Debug("submitted s3 download job")
	return &model.TransferOperation{
		TransferJob:       job,
		TransferDirective: Directive{TransferMethod: "s3", DownloadURL: downloadReq.URL},
	}, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
