package pushnotification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/pushsubscription"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/clog"
	"github.com/kazz187/sitecrew/pkg/validation"
)

var validate = validation.New()

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	notifier Notifier
	now      func() time.Time
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, notifier Notifier) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/push/vapid-public-key", s.vapidPublicKey)
	r.Route("/supervisors/{supervisorId}/push-subscriptions", func(r chi.Router) {
		r.Post("/", s.register)
		r.Delete("/", s.unregister)
		r.Post("/test", s.sendTest)
	})
}

type registerRequest struct {
	Endpoint  string `json:"endpoint" validate:"required,url"`
	P256dhKey string `json:"p256dhKey" validate:"required"`
	AuthKey   string `json:"authKey" validate:"required"`
}

type unregisterRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func supervisorID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "supervisorId")
	if !validation.IsIdent(id) {
		return "", cerr.NewValidationError("supervisorId must be 1-64 characters of [A-Za-z0-9_-]")
	}
	clog.AddAttribute(r.Context(), "supervisor_id", id)
	return id, nil
}

func (s *Server) vapidPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapidEnv.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, vapidKeyResponse{PublicKey: s.vapidEnv.VAPIDPublicKey})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supID, err := supervisorID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req registerRequest
	if err := cerr.DecodeJSONRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		cerr.SetJSONError(ctx, cerr.WrapValidationError(err))
		return
	}

	// Re-registering an endpoint moves it to this supervisor and refreshes its keys.
	existing, err := s.repo.FindByEndpoint(ctx, req.Endpoint)
	switch {
	case err == nil:
		existing.SupervisorID = supID
		existing.P256dhKey = req.P256dhKey
		existing.AuthKey = req.AuthKey
		if err := s.repo.Update(ctx, existing); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cerr.SetJSONResponse(ctx, existing)
		return
	case !cerr.IsCode(err, cerr.NotFound):
		cerr.SetJSONError(ctx, err)
		return
	}

	sub := &pushsubscription.Subscription{
		ID:           ulid.Make().String(),
		SupervisorID: supID,
		Endpoint:     req.Endpoint,
		P256dhKey:    req.P256dhKey,
		AuthKey:      req.AuthKey,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, sub)
}

func (s *Server) unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supID, err := supervisorID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	req := unregisterRequest{Endpoint: r.URL.Query().Get("endpoint")}
	if req.Endpoint == "" {
		if err := cerr.DecodeJSONRequest(r, &req); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		cerr.SetJSONError(ctx, cerr.WrapValidationError(err))
		return
	}
	existing, err := s.repo.FindByEndpoint(ctx, req.Endpoint)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if existing.SupervisorID != supID {
		cerr.SetJSONError(ctx, pushsubscription.NewNotFoundError())
		return
	}
	if err := s.repo.Delete(ctx, existing.ID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, existing)
}

func (s *Server) sendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supID, err := supervisorID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.notifier.NotifySupervisor(ctx, supID, &NotificationPayload{
		Title: "Sitecrew test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponseWithStatus(ctx, http.StatusAccepted, struct{}{})
}
