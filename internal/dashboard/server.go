package dashboard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/clog"
	"github.com/kazz187/sitecrew/pkg/validation"
)

type Server struct {
	svc *Service
	loc *time.Location
}

func NewServer(svc *Service, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{svc: svc, loc: loc}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/projects/{id}/dashboard", s.handle(ScopeProject, "id"))
	r.Get("/supervisors/{supervisorId}/dashboard", s.handle(ScopeSupervisor, "supervisorId"))
}

func (s *Server) handle(scope Scope, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, param)
		if !validation.IsIdent(id) {
			cerr.SetJSONError(ctx, cerr.NewValidationError("invalid "+string(scope)+" id"))
			return
		}
		day, err := assignment.ResolveDay(r.URL.Query().Get("day"), s.svc.now(), s.loc)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		clog.AddAttributes(ctx, map[string]any{"scope": string(scope), "scope_id": id, "day": string(day)})

		var sum Summary
		if scope == ScopeProject {
			sum, err = s.svc.ForProject(ctx, id, day)
		} else {
			sum, err = s.svc.ForSupervisor(ctx, id, day)
		}
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cerr.SetJSONResponse(ctx, sum)
	}
}
