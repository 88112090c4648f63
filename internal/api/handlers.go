package api

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/core/music"
	"github.com/FocuswithJustin/Mensura/internal/catalog"
	"github.com/FocuswithJustin/Mensura/internal/pieceio"
	"github.com/FocuswithJustin/Mensura/internal/session"
)

// maxBodySize bounds request bodies, including uploaded piece sources.
const maxBodySize = 8 << 20

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// OpenRequest opens a piece either from a file under the pieces directory
// or from source text in the given format.
type OpenRequest struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
	Source string `json:"source,omitempty"`
	Name   string `json:"name,omitempty"`
}

// PieceDetail is the summary of an open piece with its versions.
type PieceDetail struct {
	session.Info
	DefaultVersion string        `json:"default_version,omitempty"`
	VersionList    []VersionView `json:"version_list"`
}

// respond writes a JSON response.
func respond(w http.ResponseWriter, status int, data any) {
	respondMeta(w, status, data, nil)
}

func respondMeta(w http.ResponseWriter, status int, data any, meta *APIMeta) {
	if meta == nil {
		meta = &APIMeta{}
	}
	meta.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: status < 400, Data: data, Meta: meta})
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// respondErr maps a model error to a status code.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, errors.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, errors.ErrUnsupported):
		respondError(w, http.StatusUnprocessableEntity, "UNSUPPORTED", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pieceID returns the validated {id} path value.
func pieceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		respondErr(w, err)
		return "", false
	}
	return id, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":    "Mensura API",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /health",
			"GET /pieces",
			"POST /pieces",
			"GET /pieces/{id}",
			"DELETE /pieces/{id}",
			"GET /pieces/{id}/versions",
			"GET /pieces/{id}/versions/{vid}",
			"GET /pieces/{id}/markers",
			"POST /pieces/{id}/edits",
			"POST /pieces/{id}/consolidate",
			"GET /pieces/{id}/export",
			"POST /pieces/{id}/catalog",
			"GET /catalog",
			"GET /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"pieces":  s.ws.Len(),
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleListPieces(w http.ResponseWriter, r *http.Request) {
	list := s.ws.List()
	respondMeta(w, http.StatusOK, list, &APIMeta{Total: len(list)})
}

func (s *Server) handleOpenPiece(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		info session.Info
		err  error
	)
	switch {
	case req.Path != "" && req.Source != "":
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "give either path or source, not both")
		return
	case req.Path != "":
		var rel string
		if rel, err = ValidatePath(s.cfg.PiecesDir, req.Path); err == nil {
			info, err = s.ws.Open(filepath.Join(s.cfg.PiecesDir, rel))
		}
	case req.Source != "":
		info, err = s.openSource(req)
	default:
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "path or source is required")
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, info)
}

func (s *Server) openSource(req OpenRequest) (session.Info, error) {
	format := req.Format
	if format == "" {
		format = string(pieceio.FormatMNS)
	}
	f, err := pieceio.ParseFormat(format)
	if err != nil {
		return session.Info{}, err
	}
	name := req.Name
	if name == "" {
		name = "untitled." + string(f)
	}
	p, err := pieceio.Decode(f, name, strings.NewReader(req.Source))
	if err != nil {
		return session.Info{}, err
	}
	return s.ws.Create(name, p)
}

func (s *Server) handleGetPiece(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	info, err := s.ws.Info(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	detail := PieceDetail{Info: info}
	err = s.ws.Read(id, func(p *music.Piece) error {
		detail.VersionList = versionViews(p)
		if dv := p.DefaultVersion(); dv != nil {
			detail.DefaultVersion = dv.ID
		}
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

func (s *Server) handleClosePiece(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	if err := s.ws.Close(id); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id, "status": "closed"})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	var out []VersionView
	err := s.ws.Read(id, func(p *music.Piece) error {
		out = versionViews(p)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondMeta(w, http.StatusOK, out, &APIMeta{Total: len(out)})
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	vid := r.PathValue("vid")
	var out TimelineView
	err := s.ws.View(id, vid, func(view *music.Piece) error {
		out = timelineView(vid, view)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	var out []MarkerJSON
	err := s.ws.Read(id, func(p *music.Piece) error {
		out = markerViews(p)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondMeta(w, http.StatusOK, out, &APIMeta{Total: len(out)})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	var e session.Edit
	if !decodeBody(w, r, &e) {
		return
	}
	out, err := s.ws.Apply(id, e)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	out, err := s.ws.Apply(id, session.Edit{Op: session.OpConsolidateAll})
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(pieceio.FormatMNS)
	}
	f, err := pieceio.ParseFormat(name)
	if err != nil {
		respondErr(w, err)
		return
	}
	data, err := s.ws.Export(id, f)
	if err != nil {
		respondErr(w, err)
		return
	}
	ctype := "text/plain; charset=utf-8"
	if f == pieceio.FormatCMME {
		ctype = "application/xml"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+string(f)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleCatalogIndex(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "NO_CATALOG", "no catalog configured")
		return
	}
	id, ok := pieceID(w, r)
	if !ok {
		return
	}
	var stats catalog.Stats
	err := s.ws.Read(id, func(p *music.Piece) (err error) {
		stats, err = s.catalog.Index(r.Context(), id, p)
		return err
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *Server) handleCatalogList(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "NO_CATALOG", "no catalog configured")
		return
	}
	pieces, err := s.catalog.Pieces(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondMeta(w, http.StatusOK, pieces, &APIMeta{Total: len(pieces)})
}
