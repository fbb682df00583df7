package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
)

func queryBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}

func queryInt64Ptr(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, trace.BadParameter("invalid %s: %v", key, err)
	}
	return &n, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, trace.BadParameter("invalid %s: %v", key, err)
	}
	return n, nil
}

func requirePath(r *http.Request) (string, error) {
	path := r.URL.Query().Get("path")
	if path == "" {
		return "", trace.BadParameter("path is required")
	}
	return path, nil
}

func outputResult(v any) any {
	return map[string]any{"output": v}
}

func (s *Server) opsLs(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.Ls(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path,
		queryBool(r, "showHidden"), queryBool(r, "numericUid"), queryBool(r, "recursive"), queryBool(r, "dereference"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsStat(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.Stat(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path, queryBool(r, "dereference"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsHead(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	bytesN, err := queryInt64Ptr(r, "bytes")
	if err != nil {
		return nil, err
	}
	linesN, err := queryInt64Ptr(r, "lines")
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.Head(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path, bytesN, linesN, queryBool(r, "skipTrailing"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsTail(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	bytesN, err := queryInt64Ptr(r, "bytes")
	if err != nil {
		return nil, err
	}
	linesN, err := queryInt64Ptr(r, "lines")
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.Tail(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path, bytesN, linesN, queryBool(r, "skipHeading"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsView(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	size, err := queryInt64(r, "size")
	if err != nil {
		return nil, err
	}
	offset, err := queryInt64(r, "offset")
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.View(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path, size, offset)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	content, _ := result.([]byte)
	w.Write(content)
	return Raw, nil
}

func (s *Server) opsChecksum(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.Checksum(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsFileType(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	result, err := s.Filesystem.FileType(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsRm(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	if _, err := s.Filesystem.Rm(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path); err != nil {
		return nil, trace.Wrap(err)
	}
	return nil, nil
}

type mkdirRequest struct {
	Path   string `json:"path"`
	Parent bool   `json:"parent"`
}

func (s *Server) opsMkdir(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Mkdir(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path, req.Parent)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

type symlinkRequest struct {
	Target   string `json:"target"`
	LinkPath string `json:"linkPath"`
}

func (s *Server) opsSymlink(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req symlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Symlink(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Target, req.LinkPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

func (s *Server) opsDownload(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	path, err := requirePath(r)
	if err != nil {
		return nil, err
	}
	content, err := s.Filesystem.Download(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	w.Write(content)
	return Raw, nil
}

type uploadRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"` // base64-encoded
}

func (s *Server) opsUpload(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, trace.BadParameter("content must be base64-encoded: %v", err)
	}
	result, err := s.Filesystem.Upload(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path, content)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

type chmodRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
}

func (s *Server) opsChmod(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req chmodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Chmod(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path, req.Mode)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

type chownRequest struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
	Group string `json:"group"`
}

func (s *Server) opsChown(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req chownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Chown(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Path, req.Owner, req.Group)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

type compressRequest struct {
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	MatchPattern string            `json:"matchPattern"`
	Dereference  bool              `json:"dereference"`
	Compression  fsops.Compression `json:"compression"`
}

func (s *Server) opsCompress(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req compressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Compress(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Source, req.Target, req.MatchPattern, req.Dereference, req.Compression)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}

type extractRequest struct {
	Source      string            `json:"source"`
	Target      string            `json:"target"`
	Compression fsops.Compression `json:"compression"`
}

func (s *Server) opsExtract(pr principal, w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, trace.BadParameter("invalid request body: %v", err)
	}
	result, err := s.Filesystem.Extract(r.Context(), p.ByName("system"), pr.Username, pr.AccessToken, req.Source, req.Target, req.Compression)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return outputResult(result), nil
}
