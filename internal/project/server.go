package project

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/clog"
	"github.com/kazz187/sitecrew/pkg/validation"
)

var validate = validation.New()

type Server struct {
	repo Repository
	now  func() time.Time
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo, now: time.Now}
}

func (s *Server) Register(r chi.Router) {
	r.Post("/projects", s.create)
	r.Get("/projects", s.list)
	r.Get("/projects/{id}", s.get)
	r.Patch("/projects/{id}", s.update)
	r.Put("/projects/{id}/geofence", s.updateGeofence)
}

type createRequest struct {
	ID          string         `json:"id" validate:"omitempty,ident"`
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=2000"`
	Geofence    geofence.Fence `json:"geofence"`
}

type updateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type listResponse struct {
	Projects []*Project `json:"projects"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := cerr.DecodeJSONRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		cerr.SetJSONError(ctx, cerr.WrapValidationError(err))
		return
	}
	if err := req.Geofence.Validate(); err != nil {
		cerr.SetJSONError(ctx, cerr.NewValidationError("geofence: "+err.Error()))
		return
	}
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	now := s.now().UTC()
	p := &Project{
		ID:          req.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Geofence:    req.Geofence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "project_id", p.ID)
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, p)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	projects, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if projects == nil {
		projects = []*Project{}
	}
	cerr.SetJSONResponse(ctx, listResponse{Projects: projects, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateRequest
	if err := cerr.DecodeJSONRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		cerr.SetJSONError(ctx, cerr.WrapValidationError(err))
		return
	}
	p, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) updateGeofence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var fence geofence.Fence
	if err := cerr.DecodeJSONRequest(r, &fence); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := fence.Validate(); err != nil {
		cerr.SetJSONError(ctx, cerr.NewValidationError("geofence: "+err.Error()))
		return
	}
	p, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p.Geofence = fence
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "project_id", p.ID)
	cerr.SetJSONResponse(ctx, p)
}
