package pushnotification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/pushsubscription"
	"github.com/kazz187/sitecrew/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/storage"
)

var vapid = &config.VAPIDEnv{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", VAPIDContact: "mailto:test@example.com"}

func newSubRepo(t *testing.T) pushsubscription.Repository {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(store)
}

func seedSub(t *testing.T, repo pushsubscription.Repository, id, supervisor string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &pushsubscription.Subscription{
		ID:           id,
		SupervisorID: supervisor,
		Endpoint:     "https://push.example/" + id,
		P256dhKey:    "k",
		AuthKey:      "a",
		CreatedAt:    time.Now(),
	}))
}

type recordedSend struct {
	endpoint string
	payload  NotificationPayload
}

type fakeSend struct {
	mu     sync.Mutex
	sent   []recordedSend
	status map[string]int
}

func (f *fakeSend) send(message []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var p NotificationPayload
	if err := json.Unmarshal(message, &p); err != nil {
		return nil, err
	}
	f.sent = append(f.sent, recordedSend{endpoint: s.Endpoint, payload: p})
	status := http.StatusCreated
	if st, ok := f.status[s.Endpoint]; ok {
		status = st
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func TestSender_NotifySupervisor(t *testing.T) {
	ctx := context.Background()
	repo := newSubRepo(t)
	seedSub(t, repo, "s1", "sup-1")
	seedSub(t, repo, "s2", "sup-1")
	seedSub(t, repo, "s3", "sup-2")

	fake := &fakeSend{status: map[string]int{"https://push.example/s2": http.StatusGone}}
	sender := NewSender(vapid, repo)
	sender.send = fake.send

	sender.NotifySupervisor(ctx, "sup-1", &NotificationPayload{Title: "Task completed", Body: "w1 finished pour"})

	require.Len(t, fake.sent, 2)
	assert.Equal(t, "https://push.example/s1", fake.sent[0].endpoint)
	assert.Equal(t, "Task completed", fake.sent[0].payload.Title)

	_, err := repo.Get(ctx, "s2")
	assert.True(t, cerr.IsCode(err, cerr.NotFound), "gone endpoint is removed")
	_, err = repo.Get(ctx, "s1")
	assert.NoError(t, err)
}

func TestSender_SkipsWithoutVAPIDKeys(t *testing.T) {
	repo := newSubRepo(t)
	seedSub(t, repo, "s1", "sup-1")

	fake := &fakeSend{}
	sender := NewSender(&config.VAPIDEnv{}, repo)
	sender.send = fake.send

	sender.NotifySupervisor(context.Background(), "sup-1", &NotificationPayload{Title: "x"})
	assert.Empty(t, fake.sent)
}
