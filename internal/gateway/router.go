package gateway

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eth-cscs/firecrest-v2/internal/mediator"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// Server bundles the already-wired mediator surfaces this gateway's
// handlers dispatch to: one struct of collaborators, methods on it
// implementing HandlerFunc.
type Server struct {
	Registry   *mediator.Registry
	Compute    *mediator.Compute
	Filesystem *mediator.Filesystem
	Transfer   *mediator.Transfer
	Pools      map[string]*sshpool.Pool
	Verifier   TokenVerifier
}

// NewRouter builds the full HTTP surface, optionally mounted under
// apisRootPath.
func NewRouter(s *Server, apisRootPath string) http.Handler {
	router := httprouter.New()
	router.UseRawPath = true

	prefix := apisRootPath

	router.GET(prefix+"/status/systems", MakeHandler(s.statusSystems))
	router.GET(prefix+"/status/liveness", MakeHandler(s.statusLiveness))
	router.GET(prefix+"/status/userinfo", MakeHandler(s.withAuth(s.statusUserinfo)))

	router.POST(prefix+"/compute/:system/jobs", MakeHandler(s.withAuth(s.submitJob)))
	router.GET(prefix+"/compute/:system/jobs", MakeHandler(s.withAuth(s.listJobs)))
	router.GET(prefix+"/compute/:system/jobs/:job_id", MakeHandler(s.withAuth(s.getJob)))
	router.GET(prefix+"/compute/:system/jobs/:job_id/metadata", MakeHandler(s.withAuth(s.getJobMetadata)))
	router.DELETE(prefix+"/compute/:system/jobs/:job_id", MakeHandler(s.withAuth(s.cancelJob)))
	router.GET(prefix+"/compute/:system/jobs/:job_id/attach", s.attachJob)
	router.GET(prefix+"/compute/:system/nodes", MakeHandler(s.withAuth(s.listNodes)))
	router.GET(prefix+"/compute/:system/partitions", MakeHandler(s.withAuth(s.listPartitions)))
	router.GET(prefix+"/compute/:system/reservations", MakeHandler(s.withAuth(s.listReservations)))

	router.GET(prefix+"/filesystem/:system/ops/ls", MakeHandler(s.withAuth(s.opsLs)))
	router.GET(prefix+"/filesystem/:system/ops/stat", MakeHandler(s.withAuth(s.opsStat)))
	router.GET(prefix+"/filesystem/:system/ops/head", MakeHandler(s.withAuth(s.opsHead)))
	router.GET(prefix+"/filesystem/:system/ops/tail", MakeHandler(s.withAuth(s.opsTail)))
	router.GET(prefix+"/filesystem/:system/ops/view", MakeHandler(s.withAuth(s.opsView)))
	router.GET(prefix+"/filesystem/:system/ops/checksum", MakeHandler(s.withAuth(s.opsChecksum)))
	router.GET(prefix+"/filesystem/:system/ops/file", MakeHandler(s.withAuth(s.opsFileType)))
	router.DELETE(prefix+"/filesystem/:system/ops/rm", MakeHandler(s.withAuth(s.opsRm)))
	router.POST(prefix+"/filesystem/:system/ops/mkdir", MakeHandler(s.withAuth(s.opsMkdir)))
	router.POST(prefix+"/filesystem/:system/ops/symlink", MakeHandler(s.withAuth(s.opsSymlink)))
	router.GET(prefix+"/filesystem/:system/ops/download", MakeHandler(s.withAuth(s.opsDownload)))
	router.POST(prefix+"/filesystem/:system/ops/upload", MakeHandler(s.withAuth(s.opsUpload)))
	router.PUT(prefix+"/filesystem/:system/ops/chmod", MakeHandler(s.withAuth(s.opsChmod)))
	router.PUT(prefix+"/filesystem/:system/ops/chown", MakeHandler(s.withAuth(s.opsChown)))
	router.POST(prefix+"/filesystem/:system/ops/compress", MakeHandler(s.withAuth(s.opsCompress)))
	router.POST(prefix+"/filesystem/:system/ops/extract", MakeHandler(s.withAuth(s.opsExtract)))

	router.POST(prefix+"/filesystem/:system/transfer/upload", MakeHandler(s.withAuth(s.transferUpload)))
	router.POST(prefix+"/filesystem/:system/transfer/download", MakeHandler(s.withAuth(s.transferDownload)))
	router.POST(prefix+"/filesystem/:system/transfer/cp", MakeHandler(s.withAuth(s.transferCopy)))
	router.POST(prefix+"/filesystem/:system/transfer/mv", MakeHandler(s.withAuth(s.transferMove)))
	router.POST(prefix+"/filesystem/:system/transfer/compress", MakeHandler(s.withAuth(s.transferCompress)))
	router.POST(prefix+"/filesystem/:system/transfer/extract", MakeHandler(s.withAuth(s.transferExtract)))
	router.DELETE(prefix+"/filesystem/:system/transfer/rm", MakeHandler(s.withAuth(s.transferDelete)))

	router.Handler(http.MethodGet, prefix+"/metrics", promhttp.Handler())

	return router
}
