// Package wormhole implements transfer.Method over Magic Wormhole: rather
// than routing bytes through object storage, the cluster-side job runs the
// wormhole CLI directly against the caller's own wormhole client, using a
// short human-pronounceable code as the rendezvous secret.
package wormhole

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
	"github.com/eth-cscs/firecrest-v2/internal/transfer"
)

var log = logrus.WithField("component", "wormhole")

// spaceWords is the word list generate_wormhole_code draws from upstream;
// kept verbatim so codes this backend mints read the same way.
var spaceWords = []string{
	"orbit", "station", "colony", "outpost", "asteroid", "comet", "probe", "module", "observatory",
	"alphacentauri", "proxima", "barnardsstar", "sirius", "vega", "betelgeuse", "rigel", "polaris",
	"andromeda", "orion", "pegasus", "lyra",
	"nebula", "pulsar", "quasar", "singularity", "eventhorizon", "exoplanet", "galaxy", "cluster",
}

// generateCode mints a "channel-word-word-word" code, the same shape as
// upstream's generate_wormhole_code, using crypto/rand in place of
// Python's secrets module for the channel number and word choices.
func generateCode() (string, error) {
	channel, err := rand.Int(rand.Reader, big.NewInt(98))
	if err != nil {
		return "", trace.Wrap(err)
	}
	words := make([]string, 3)
	for i := range words {
		idx, werr := rand.Int(rand.Reader, big.NewInt(int64(len(spaceWords))))
		if werr != nil {
			return "", trace.Wrap(werr)
		}
		words[i] = spaceWords[idx.Int64()]
	}
	return fmt.Sprintf("%d-%s", channel.Int64()+1, strings.Join(words, "-")), nil
}

// Directive is the method-specific payload carried in
// model.TransferOperation.TransferDirective for a wormhole transfer. Code
// is only set on Download, where this backend is the one generating it;
// on Upload the caller already supplied its own code via Location.Code.
type Directive struct {
	TransferMethod string `json:"transferMethod"`
	WormholeCode   string `json:"wormholeCode,omitempty"`
}

// Config is the static configuration one system's wormhole method is
// built from.
type Config struct {
	WorkDir      string
	Directives   []string
	SystemName   string
	PyPIIndexURL string
}

// Method is the wormhole implementation of transfer.Method.
type Method struct {
	cfg       Config
	scheduler scheduler.Resolver
}

func New(cfg Config, sched scheduler.Resolver) *Method {
	return &Method{cfg: cfg, scheduler: sched}
}

// Upload moves bytes from the caller into the cluster filesystem: the
// caller is expected to already be running `wormhole send` under the code
// it passed in target.Code, and the submitted job runs `wormhole receive`
// against it.
func (m *Method) Upload(ctx context.Context, target transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	if target.Code == "" {
		return nil, trace.BadParameter("a wormhole code is required to receive an upload")
	}

	directives, err := transfer.FormatDirectives(m.cfg.Directives, account)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	script, err := transfer.RenderScript("job_wormhole_receive.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"target_path":       target.Path,
		"wormhole_code":     target.Code,
		"pypi_index_url":    m.cfg.PyPIIndexURL,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	helper := transfer.NewJobHelper(fmt.Sprintf("%s/%s", m.cfg.WorkDir, username), script, "IngressFileTransfer")
	job, err := helper.Submit(ctx, m.scheduler.For(username, accessToken), target.System)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.WithField("job_id", job.JobID).Debug("submitted wormhole receive job")
	return &model.TransferOperation{
		TransferJob:       job,
		TransferDirective: Directive{TransferMethod: "wormhole"},
	}, nil
}

// Download moves bytes from the cluster filesystem to the caller: this
// backend mints the wormhole code, submits a job that runs `wormhole send`
// under it, and hands the code back for the caller to `wormhole receive`.
func (m *Method) Download(ctx context.Context, source transfer.Location, username, accessToken, account string) (*model.TransferOperation, error) {
	code, err := generateCode()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	directives, err := transfer.FormatDirectives(m.cfg.Directives, account)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	script, err := transfer.RenderScript("job_wormhole_send.sh.tmpl", map[string]any{
		"sbatch_directives": directives,
		"source":            source.Path,
		"wormhole_code":     code,
		"pypi_index_url":    m.cfg.PyPIIndexURL,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	helper := transfer.NewJobHelper(fmt.Sprintf("%s/%s", m.cfg.WorkDir, username), script, "OutgressFileTransfer")
	job, err := helper.Submit(ctx, m.scheduler.For(username, accessToken), m.cfg.SystemName)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.WithField("job_id", job.JobID).Debug("submitted wormhole send job")
	return &model.TransferOperation{
		TransferJob:       job,
		TransferDirective: Directive{TransferMethod: "wormhole", WormholeCode: code},
	}, nil
}
