package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/eth-cscs/firecrest-v2/internal/attach"
)

// upgrader leaves origin checking permissive: origin checks belong to the
// reverse proxy in front of this gateway, not the handler itself.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// attachJob upgrades the request to a WebSocket and bridges it to the job's
// interactive session. It can't use MakeHandler: once the upgrade succeeds,
// errors must travel as close frames, not an HTTP body.
func (s *Server) attachJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pr, err := authenticate(r.Context(), s.Verifier, r)
	if err != nil {
		writeError(w, err)
		return
	}

	system := p.ByName("system")
	jobID, err := strconv.ParseInt(p.ByName("job_id"), 10, 64)
	if err != nil {
		writeError(w, trace.BadParameter("invalid job_id: %v", err))
		return
	}

	pool, ok := s.Pools[system]
	if !ok {
		writeError(w, trace.NotFound("unknown system %q", system))
		return
	}

	entrypoint := r.URL.Query().Get("entrypoint")
	cmd, err := s.Compute.AttachCommand(system, pr.Username, pr.AccessToken, jobID, entrypoint)
	if err != nil {
		writeError(w, trace.Wrap(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	if err := attach.Attach(r.Context(), pool, conn, pr.Username, pr.AccessToken, cmd); err != nil {
		log.WithError(err).Debug("attach session failed")
	}
}
