package pushnotification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/pushsubscription"
	"github.com/kazz187/sitecrew/pkg/cerr"
)

func newTestRouter(t *testing.T, env *config.VAPIDEnv) (http.Handler, pushsubscription.Repository, *fakeNotifier) {
	t.Helper()
	repo := newSubRepo(t)
	n := newFakeNotifier()
	router := chi.NewRouter()
	router.Use(cerr.NewConvertConnectErrorChiMiddleware())
	NewServer(env, repo, n).Register(router)
	return router, repo, n
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_RegisterAndUnregister(t *testing.T) {
	router, repo, _ := newTestRouter(t, vapid)
	ctx := context.Background()

	body := `{"endpoint":"https://push.example/dev1","p256dhKey":"p","authKey":"a"}`
	rec := do(router, http.MethodPost, "/supervisors/sup-1/push-subscriptions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created pushsubscription.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "sup-1", created.SupervisorID)

	// same endpoint registered by another supervisor moves over
	rec = do(router, http.MethodPost, "/supervisors/sup-2/push-subscriptions",
		`{"endpoint":"https://push.example/dev1","p256dhKey":"p2","authKey":"a2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sup-2", all[0].SupervisorID)
	assert.Equal(t, "p2", all[0].P256dhKey)

	rec = do(router, http.MethodDelete, "/supervisors/sup-1/push-subscriptions?endpoint=https://push.example/dev1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodDelete, "/supervisors/sup-2/push-subscriptions", `{"endpoint":"https://push.example/dev1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestServer_RegisterValidation(t *testing.T) {
	router, _, _ := newTestRouter(t, vapid)

	rec := do(router, http.MethodPost, "/supervisors/sup-1/push-subscriptions", `{"endpoint":"not a url","p256dhKey":"p","authKey":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/supervisors/bad%20id/push-subscriptions", `{"endpoint":"https://push.example/x","p256dhKey":"p","authKey":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_VAPIDKeyAndTest(t *testing.T) {
	router, _, n := newTestRouter(t, vapid)

	rec := do(router, http.MethodGet, "/push/vapid-public-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"pub"}`, rec.Body.String())

	rec = do(router, http.MethodPost, "/supervisors/sup-3/push-subscriptions/test", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, n.count("sup-3"))

	router, _, _ = newTestRouter(t, &config.VAPIDEnv{})
	rec = do(router, http.MethodGet, "/push/vapid-public-key", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}
