package assignment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/clog"
	"github.com/kazz187/sitecrew/pkg/validation"
)

type Server struct {
	svc *Service
	loc *time.Location
	now func() time.Time
}

func NewServer(svc *Service, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{svc: svc, loc: loc, now: time.Now}
}

func (s *Server) Register(r chi.Router) {
	r.Post("/assignments", s.create)
	r.Route("/assignments/{id}", func(r chi.Router) {
		r.Get("/", s.get)
		r.Patch("/", s.update)
		r.Post("/start", s.start)
		r.Post("/resume", s.resume)
		r.Post("/pause-and-start", s.pauseAndStart)
		r.Post("/pause", s.pause)
		r.Post("/complete", s.complete)
		r.Post("/cancel", s.cancel)
		r.Post("/reset", s.reset)
		r.Post("/progress", s.reportProgress)
		r.Post("/instructions", s.addInstruction)
	})
	r.Get("/workers/{workerId}/assignments", s.listForWorker)
}

// ResolveDay parses raw as a calendar day, defaulting to the current day in
// loc when raw is empty.
func ResolveDay(raw string, now time.Time, loc *time.Location) (Day, error) {
	if raw == "" {
		return DayOf(now, loc), nil
	}
	d, err := ParseDay(raw)
	if err != nil {
		return "", newValidationError(err.Error())
	}
	return d, nil
}

type locationRequest struct {
	Location *geofence.Coordinate `json:"location"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type instructionRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

type pauseAndStartResponse struct {
	PausedID  *int64      `json:"pausedId"`
	StartedID int64       `json:"startedId"`
	Paused    *Assignment `json:"paused,omitempty"`
	Started   *Assignment `json:"started"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in CreateInput
	if err := cerr.DecodeJSONRequest(r, &in); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	day, err := ResolveDay(string(in.Day), s.now(), s.loc)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	in.Day = day
	a, err := s.svc.Create(ctx, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "assignment_id", a.ID)
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, a)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		return s.svc.Get(r.Context(), id)
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var in UpdateInput
		if err := cerr.DecodeJSONRequest(r, &in); err != nil {
			return nil, err
		}
		return s.svc.Update(r.Context(), id, in)
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req locationRequest
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		return s.svc.Start(r.Context(), id, req.Location)
	})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req locationRequest
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		return s.svc.Resume(r.Context(), id, req.Location)
	})
}

func (s *Server) pauseAndStart(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req locationRequest
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		res, err := s.svc.PauseAndStart(r.Context(), id, req.Location)
		if err != nil {
			return nil, err
		}
		out := pauseAndStartResponse{StartedID: res.Started.ID, Started: res.Started, Paused: res.Paused}
		if res.Paused != nil {
			out.PausedID = &res.Paused.ID
		}
		return out, nil
	})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		return s.svc.Pause(r.Context(), id)
	})
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		return s.svc.Complete(r.Context(), id)
	})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req cancelRequest
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		return s.svc.Cancel(r.Context(), id, req.Reason)
	})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		return s.svc.Reset(r.Context(), id)
	})
}

func (s *Server) reportProgress(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req ProgressReport
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		return s.svc.ReportProgress(r.Context(), id, req)
	})
}

func (s *Server) addInstruction(w http.ResponseWriter, r *http.Request) {
	s.withID(r, func(id int64) (any, error) {
		var req instructionRequest
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			return nil, err
		}
		return s.svc.AddInstruction(r.Context(), id, req.Text, req.Author)
	})
}

func (s *Server) listForWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID := chi.URLParam(r, "workerId")
	if !validation.IsIdent(workerID) {
		cerr.SetJSONError(ctx, newValidationError("invalid worker id"))
		return
	}
	day, err := ResolveDay(r.URL.Query().Get("day"), s.now(), s.loc)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttributes(ctx, map[string]any{"worker_id": workerID, "day": string(day)})
	list, err := s.svc.ListForWorker(ctx, workerID, day)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if list == nil {
		list = []*Assignment{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"day": day, "assignments": list})
}

func (s *Server) withID(r *http.Request, fn func(id int64) (any, error)) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		cerr.SetJSONError(ctx, newValidationError("assignment id must be a positive integer"))
		return
	}
	clog.AddAttribute(ctx, "assignment_id", id)
	res, err := fn(id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}
