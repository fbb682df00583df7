package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func jobID(p httprouter.Params) (int64, error) {
	id, err := strconv.ParseInt(p.ByName("job_id"), 10, 64)
	if err != nil {
		return 0, trace.BadParameter("invalid job_id: %v", err)
	}
	return id, nil
}

type submitJobRequest struct {
	Job model.JobDescription `json:"job"`
}

type submitJobResponse struct {
	JobID int64 `json:"jobId"`
}

func (s *Server) submitJob(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	id, err := s.Compute.SubmitJob(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Job)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return Response{Status: http.StatusCreated, Body: submitJobResponse{JobID: id}}, nil
}

type jobsResponse struct {
	Jobs []model.Job `json:"jobs"`
}

func (s *Server) listJobs(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	allUsers := r.URL.Query().Get("allusers") == "true"
	jobs, err := s.Compute.GetJobs(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, allUsers)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return jobsResponse{Jobs: jobs}, nil
}

func (s *Server) getJob(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	id, err := jobID(p)
	if err != nil {
		return nil, err
	}
	job, err := s.Compute.GetJob(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if job == nil {
		return nil, trace.NotFound("job %d not found", id)
	}
	return jobsResponse{Jobs: []model.Job{*job}}, nil
}

type jobMetadataResponse struct {
	Jobs []model.JobMetadata `json:"jobs"`
}

func (s *Server) getJobMetadata(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	id, err := jobID(p)
	if err != nil {
		return nil, err
	}
	meta, err := s.Compute.GetJobMetadata(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if meta == nil {
		return nil, trace.NotFound("job %d not found", id)
	}
	return jobMetadataResponse{Jobs: []model.JobMetadata{*meta}}, nil
}

func (s *Server) cancelJob(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	id, err := jobID(p)
	if err != nil {
		return nil, err
	}
	if err := s.Compute.CancelJob(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, id); err != nil {
		return nil, trace.Wrap(err)
	}
	return nil, nil
}

type nodesResponse struct {
	Nodes []model.Node `json:"nodes"`
}

func (s *Server) listNodes(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	nodes, err := s.Compute.Nodes(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return nodesResponse{Nodes: nodes}, nil
}

type partitionsResponse struct {
	Partitions []model.Partition `json:"partitions"`
}

func (s *Server) listPartitions(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	partitions, err := s.Compute.Partitions(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return partitionsResponse{Partitions: partitions}, nil
}

type reservationsResponse struct {
	Reservations []model.Reservation `json:"reservations"`
}

func (s *Server) listReservations(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	reservations, err := s.Compute.Reservations(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return reservationsResponse{Reservations: reservations}, nil
}
