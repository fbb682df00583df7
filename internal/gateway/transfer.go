package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// transferDirectivesRequest is a tagged-union request body: transferMethod
// discriminates which of the optional fields apply.
type transferDirectivesRequest struct {
	TransferMethod model.TransferMethod `json:"transferMethod"`
	FileSize       int64                `json:"fileSize"`
	WormholeCode   string               `json:"wormholeCode"`
}

type uploadDownloadRequest struct {
	Path               string                    `json:"path"`
	Account            string                    `json:"account"`
	TransferDirectives transferDirectivesRequest `json:"transferDirectives"`
}

func (s *Server) transferUpload(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req uploadDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	op, err := s.Transfer.Upload(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path,
		req.TransferDirectives.FileSize, req.Account, req.TransferDirectives.TransferMethod, req.TransferDirectives.WormholeCode)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return op, nil
}

func (s *Server) transferDownload(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req uploadDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	op, err := s.Transfer.Download(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path,
		req.Account, req.TransferDirectives.TransferMethod)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return op, nil
}

type cpMvRequest struct {
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
}

func (s *Server) transferCopy(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req cpMvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	job, err := s.Transfer.Copy(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.SourcePath, req.TargetPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]any{"transferJob": job}, nil
}

func (s *Server) transferMove(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req cpMvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	job, err := s.Transfer.Move(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.SourcePath, req.TargetPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]any{"transferJob": job}, nil
}

func (s *Server) transferDelete(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	job, err := s.Transfer.Delete(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]any{"transferJob": job}, nil
}

func (s *Server) transferCompress(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req compressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	job, err := s.Transfer.Compress(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Source, req.Target, req.MatchPattern, req.Dereference, req.Compression)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]any{"transferJob": job}, nil
}

func (s *Server) transferExtract(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	job, err := s.Transfer.Extract(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Source, req.Target, req.Compression)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]any{"transferJob": job}, nil
}
