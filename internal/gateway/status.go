package gateway

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

type systemsResponse struct {
	Systems []systemView `json:"systems"`
}

type systemView struct {
	Name      string                                   `json:"name"`
	Scheduler model.SchedulerConfig                    `json:"scheduler"`
	Health    map[model.ServiceType]model.HealthResult `json:"health"`
}

func (s *Server) statusSystems(w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	clusters := s.Registry.All()
	systems := make([]systemView, 0, len(clusters))
	for _, c := range clusters {
		systems = append(systems, systemView{Name: c.Name, Scheduler: c.Scheduler, Health: c.MarshalHealth()})
	}
	return systemsResponse{Systems: systems}, nil
}

func (s *Server) statusLiveness(w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

func (s *Server) statusUserinfo(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	return map[string]string{"username": pr.Username}, nil
}
