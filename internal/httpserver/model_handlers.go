package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/soullink/fay-gateway/internal/assets"
	"github.com/soullink/fay-gateway/internal/modelstore"
	"github.com/soullink/fay-gateway/internal/persona"
	"github.com/soullink/fay-gateway/internal/stream"
)

// respondModel writes the {code, message, data} envelope of the model API.
func (s *Server) respondModel(w http.ResponseWriter, status int, message string, data any) {
	s.respondJSON(w, status, map[string]any{"code": status, "message": message, "data": data})
}

func (s *Server) respondModelError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modelstore.ErrNotFound), errors.Is(err, assets.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persona.ErrInvalidAttributes), errors.Is(err, persona.ErrNoJSON),
		errors.Is(err, assets.ErrUnsupportedType), errors.Is(err, assets.ErrTooLarge),
		errors.Is(err, assets.ErrInvalidName), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("model request failed")
	}
	s.respondModel(w, status, err.Error(), nil)
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

type createModelRequest struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Attributes           map[string]string `json:"attributes"`
	CharacterDescription string            `json:"character_description"`
	Username             string            `json:"username"`
	IsGlobal             bool              `json:"is_global"`
	Model3DURL           string            `json:"model3d_url"`
	IdleModelURL         string            `json:"idle_model_url"`
	TalkingModelURL      string            `json:"talking_model_url"`
}

func (s *Server) handleModelCreate(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondModelError(w, badRequest(err.Error()))
		return
	}
	var attrs persona.Attributes
	switch {
	case len(req.Attributes) > 0:
		attrs = persona.FromMap(req.Attributes)
		if err := persona.Validate(&attrs); err != nil {
			s.respondModelError(w, err)
			return
		}
	case strings.TrimSpace(req.CharacterDescription) != "":
		if s.llm == nil {
			s.respondModel(w, http.StatusServiceUnavailable, "llm not configured", nil)
			return
		}
		generated, err := persona.Generate(r.Context(), s.llm, req.CharacterDescription)
		if err != nil {
			s.respondModelError(w, err)
			return
		}
		attrs = generated
	default:
		s.respondModelError(w, badRequest("attributes or character_description required"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = attrs.Name
	}
	username := strings.TrimSpace(req.Username)
	p, err := s.models.Create(r.Context(), modelstore.Profile{
		Name:            name,
		Description:     req.Description,
		Attributes:      attrs.Map(),
		CreatorUsername: username,
		IsGlobal:        req.IsGlobal || username == "",
		Model3DURL:      req.Model3DURL,
		IdleModelURL:    req.IdleModelURL,
		TalkingModelURL: req.TalkingModelURL,
	})
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.logger.Info().Str("model_id", p.ModelID).Str("name", p.Name).Str("creator", username).Msg("model created")
	s.respondModel(w, http.StatusOK, "created", p)
}

type listModelsRequest struct {
	Username      string `json:"username"`
	IncludeGlobal bool   `json:"include_global"`
}

func (s *Server) handleModelList(w http.ResponseWriter, r *http.Request) {
	var req listModelsRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondModelError(w, badRequest(err.Error()))
		return
	}
	list, err := s.models.List(r.Context(), modelstore.ListFilter{
		Username:      strings.TrimSpace(req.Username),
		IncludeGlobal: req.IncludeGlobal,
	})
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	if list == nil {
		list = []modelstore.Profile{}
	}
	s.respondModel(w, http.StatusOK, "ok", list)
}

type modelIDRequest struct {
	ModelID  string `json:"model_id"`
	Username string `json:"username"`
}

func (r modelIDRequest) validate() error {
	if strings.TrimSpace(r.ModelID) == "" {
		return badRequest("model_id required")
	}
	return nil
}

func (s *Server) decodeModelID(w http.ResponseWriter, r *http.Request) (modelIDRequest, bool) {
	var req modelIDRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondModelError(w, badRequest(err.Error()))
		return req, false
	}
	if err := req.validate(); err != nil {
		s.respondModelError(w, err)
		return req, false
	}
	req.ModelID = strings.TrimSpace(req.ModelID)
	return req, true
}

func (s *Server) handleModelDetail(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeModelID(w, r)
	if !ok {
		return
	}
	p, err := s.models.Get(r.Context(), req.ModelID)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.respondModel(w, http.StatusOK, "ok", p)
}

type updateModelRequest struct {
	ModelID         string            `json:"model_id"`
	Name            *string           `json:"name"`
	Description     *string           `json:"description"`
	Attributes      map[string]string `json:"attributes"`
	Model3DURL      *string           `json:"model3d_url"`
	IdleModelURL    *string           `json:"idle_model_url"`
	TalkingModelURL *string           `json:"talking_model_url"`
}

func (s *Server) handleModelUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateModelRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondModelError(w, badRequest(err.Error()))
		return
	}
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		s.respondModelError(w, badRequest("model_id required"))
		return
	}
	u := modelstore.Update{
		Name:            req.Name,
		Description:     req.Description,
		Model3DURL:      req.Model3DURL,
		IdleModelURL:    req.IdleModelURL,
		TalkingModelURL: req.TalkingModelURL,
	}
	if len(req.Attributes) > 0 {
		attrs := persona.FromMap(req.Attributes)
		if err := persona.Validate(&attrs); err != nil {
			s.respondModelError(w, err)
			return
		}
		u.Attributes = attrs.Map()
	}
	if err := s.models.Update(r.Context(), modelID, u); err != nil {
		s.respondModelError(w, err)
		return
	}
	p, err := s.models.Get(r.Context(), modelID)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.respondModel(w, http.StatusOK, "updated", p)
}

func (s *Server) handleModelDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeModelID(w, r)
	if !ok {
		return
	}
	p, err := s.models.Delete(r.Context(), req.ModelID)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	if s.assets != nil {
		for _, u := range p.AssetURLs() {
			if err := s.assets.Remove(u); err != nil {
				s.logger.Warn().Err(err).Str("model_id", p.ModelID).Str("url", u).Msg("remove model asset")
			}
		}
	}
	s.respondModel(w, http.StatusOK, "deleted", map[string]any{"model_id": p.ModelID})
}

func (s *Server) handleModelClearHistory(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeModelID(w, r)
	if !ok {
		return
	}
	if s.content == nil {
		s.respondModel(w, http.StatusServiceUnavailable, "conversation store not configured", nil)
		return
	}
	n, err := s.content.ClearModelHistory(r.Context(), req.ModelID)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.respondModel(w, http.StatusOK, "cleared", map[string]any{"deleted": n})
}

func (s *Server) handleModelSelect(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeModelID(w, r)
	if !ok {
		return
	}
	username := stream.NormalizeUsername(req.Username)
	if err := s.models.SelectModel(r.Context(), username, req.ModelID); err != nil {
		s.respondModelError(w, err)
		return
	}
	s.respondModel(w, http.StatusOK, "selected", map[string]any{"username": username, "model_id": req.ModelID})
}

type generateRequest struct {
	Description          string `json:"description"`
	CharacterDescription string `json:"character_description"`
}

func (s *Server) handleGenerateAttributes(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondModelError(w, badRequest(err.Error()))
		return
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = strings.TrimSpace(req.CharacterDescription)
	}
	if desc == "" {
		s.respondModelError(w, badRequest("description required"))
		return
	}
	if s.llm == nil {
		s.respondModel(w, http.StatusServiceUnavailable, "llm not configured", nil)
		return
	}
	attrs, err := persona.Generate(r.Context(), s.llm, desc)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.respondModel(w, http.StatusOK, "generated", attrs)
}

func (s *Server) handleModelUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, s.assets.MaxBytes()+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondModelError(w, assets.ErrTooLarge)
			return
		}
		s.respondModelError(w, badRequest("file required: "+err.Error()))
		return
	}
	defer file.Close()

	asset, err := s.assets.Save(header.Filename, file)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	s.logger.Info().Str("filename", asset.Filename).Int64("size", asset.Size).Msg("model asset uploaded")
	s.respondModel(w, http.StatusOK, "uploaded", asset)
}

func (s *Server) handleServeAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := s.assets.Open(name)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	w.Header().Set("Content-Type", assets.ContentType(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
