// Package streamer implements transfer.Method over a direct TCP/WebSocket
// stream between the caller and a short-lived agent the submitted job
// starts on a compute node: no intermediate storage, just a secret and a
// set of coordinates the caller dials. The job-side agent itself lives in
// cmd/streamer-agent.
package streamer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
	"github.com/eth-cscs/firecrest-v2/internal/transfer"
)

var log = logrus.WithField("component", "streamer")

// Directive is the method-specific payload carried in
// model.TransferOperation.TransferDirective for a streamer transfer.
// Coordinates is a base64url-encoded JSON object ({"ports":[...],
// "ips":[...],"secret":"..."}) matching upstream's encoding exactly, so
// existing streamer clients can decode it unchanged.
type Directive struct {
	TransferMethod string `json:"transferMethod"`
	Coordinates    string `json:"coordinates"`
}

type coordinates struct {
	Ports  []int    `json:"ports"`
	IPs    []string `json:"ips"`
	Secret string   `json:"secret"`
}

// Config is the static configuration one system's streamer method is
// built from.
type Config struct {
	WorkDir              string
	Directives           []string
	SystemName           string
	PyPIIndexURL         string
	PortRangeStart       int
	PortRangeEnd         int
	PublicIPs            []string
	Host                 string
	WaitTimeoutSeconds   int
	InboundTransferLimit int64
}

// Method is the streamer implementation of transfer.Method.
type Method struct {
	cfg       Config
	scheduler scheduler.Resolver
}

func New(cfg Config, sched scheduler.Resolver) *Method {
	if len(cfg.PublicIPs) == 0 {
		cfg.PublicIPs = []string{"localhost"}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	return &Method{cfg: cfg, scheduler: sched}
}

// generateSecret mints a random URL-safe secret the same length as
// upstream's secrets.token_urlsafe(16).
func generateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", trace.Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (m *Method) encodeCoordinates(secret string) (string, error) {
	payload, err := json.Marshal(coordinates{
		Ports:  []int{m.cfg.PortRangeStart, m.cfg.PortRangeEnd},
		IPs:    m.cfg.PublicIPs,
		Secret: secret,
	})
	if err != nil {
		return "", trace.Wrap(err)
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

func (m *Method) submit(ctx context.Context, operation, path, username, accessToken, account, jobName, system string) (*model.TransferOperation, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	directives, err := transfer.FormatDirectives(m.cfg.Directives, account)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	script, err := transfer.RenderScript("job_streamer.sh.tmpl", map[string]any{
		"sbatch_directives":      directives,
		"operation":              operation,
		"target_path":            path,
		"secret":                 secret,
		"port_range":             fmt.Sprintf("%d %d", m.cfg.PortRangeStart, m.cfg.PortRangeEnd),
		"public_ips":             m.cfg.PublicIPs,
		"host":                   m.cfg.Host,
		"pypi_index_url":         m.cfg.PyPIIndexURL,
		"wait_timeout":           m.cfg.WaitTimeoutSeconds,
		"inbound_transfer_limit": m.cfg.InboundTransferLimit,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	helper := transfer.NewJobHelper(fmt.Sprintf("%s/%s", m.cfg.WorkDir, username), script, jobName)
	job, err := helper.Submit(ctx, m.scheduler.For(username, accessToken), system)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	encoded, err := m.encodeCoordinates(secret)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.WithField("job_id", job.JobID).Debug("submitted streamer job")
	return &model.TransferOperation{
		TransferJob:       job,
		TransferDirective: Directive{TransferMethod: "streamer", Coordinates: encoded},
	}, nil
}

// Upload moves bytes from the caller into the cluster filesystem: the
// submitted job runs the agent in "receive" mode and the caller dials in
// to stream its data to it.
func (m *Method) Upload(ctx context.Context, target transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	return m.submit(ctx, "receive", target.Path, username, accessToken, account, "IngressFileTransfer", target.System)
}

// Download moves bytes from the cluster filesystem to the caller: the
// submitted job runs the agent in "send" mode and the caller dials in to
// receive the stream.
func (m *Method) Download(ctx context.Context, source transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	return m.submit(ctx, "send", source.Path, username, accessToken, account, "OutgressFileTransfer", m.cfg.SystemName)
}
