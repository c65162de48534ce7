package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
	"github.com/bdobrica/Lumio/internal/lumio/store"
)

type echoRouter struct {
	mu   sync.Mutex
	seen []envelope.InboundMessage
}

func (r *echoRouter) Route(_ context.Context, msg envelope.InboundMessage) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, msg)
	if msg.Text == "silent" {
		return ""
	}
	return "re: " + msg.Text
}

// fakeAPI is a minimal Bot API.
type fakeAPI struct {
	mu          sync.Mutex
	updates     string
	offsets     []string
	sent        []sendRequest
	rejectMD    bool
	sendFailure bool
	blocked     bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		body := f.updates
		f.updates = `{"ok":true,"result":[]}`
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.sent = append(f.sent, req)
		reject := (f.rejectMD && req.ParseMode != "") || f.sendFailure
		blocked := f.blocked
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if blocked {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		if reject {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})
	return mux
}

func (f *fakeAPI) sentMessages() []sendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendRequest(nil), f.sent...)
}

func newTestBot(t *testing.T, api *fakeAPI, router Router, state store.State) *Bot {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{Token: "TOKEN", APIBase: srv.URL, PollTimeout: time.Second}, router, state)
}

const twoUpdates = `{"ok":true,"result":[
	{"update_id": 41, "message": {"message_id": 1, "text": "/today", "from": {"id": 7}, "chat": {"id": -100}}},
	{"update_id": 42, "message": {"message_id": 2, "text": "你好", "from": {"id": 7}, "chat": {"id": -100}}},
	{"update_id": 43, "message": {"message_id": 3, "from": {"id": 7}, "chat": {"id": -100}}},
	{"update_id": 44, "message": {"message_id": 4, "text": "bot echo", "from": {"id": 9, "is_bot": true}, "chat": {"id": -100}}}
]}`

func TestPollOnce_RoutesAndReplies(t *testing.T) {
	api := &fakeAPI{updates: twoUpdates}
	router := &echoRouter{}
	b := newTestBot(t, api, router, nil)

	next, err := b.PollOnce(context.Background(), 0)
	require.NoError(t, err)
	b.wg.Wait()
	assert.Equal(t, int64(45), next)

	require.Len(t, router.seen, 2)
	for _, msg := range router.seen {
		assert.Equal(t, envelope.PlatformTelegram, msg.Platform)
		assert.Equal(t, "7", msg.UserID)
		assert.Equal(t, "-100", msg.ChatID)
	}

	sent := api.sentMessages()
	require.Len(t, sent, 2)
	byText := map[string]sendRequest{}
	for _, s := range sent {
		byText[s.Text] = s
	}
	assert.Equal(t, "Markdown", byText["re: /today"].ParseMode)
	assert.Equal(t, "", byText["re: 你好"].ParseMode)
	assert.Equal(t, "-100", byText["re: 你好"].ChatID)
}

func TestPollOnce_EmptyReplyIsNotSent(t *testing.T) {
	api := &fakeAPI{updates: `{"ok":true,"result":[{"update_id":1,"message":{"text":"silent","from":{"id":1},"chat":{"id":1}}}]}`}
	b := newTestBot(t, api, &echoRouter{}, nil)

	_, err := b.PollOnce(context.Background(), 0)
	require.NoError(t, err)
	b.wg.Wait()
	assert.Empty(t, api.sentMessages())
}

func TestPollOnce_APIError(t *testing.T) {
	api := &fakeAPI{updates: `{"ok":false,"error_code":401,"description":"Unauthorized"}`}
	b := newTestBot(t, api, &echoRouter{}, nil)

	next, err := b.PollOnce(context.Background(), 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Unauthorized", apiErr.Description)
	assert.Equal(t, int64(5), next)
}

func TestOffsetPersistsAcrossRestarts(t *testing.T) {
	db, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	state := store.NewState(db)

	api := &fakeAPI{updates: twoUpdates}
	b := newTestBot(t, api, &echoRouter{}, state)
	_, err = b.PollOnce(context.Background(), b.loadOffset(context.Background()))
	require.NoError(t, err)
	b.wg.Wait()

	restarted := newTestBot(t, &fakeAPI{}, &echoRouter{}, state)
	assert.Equal(t, int64(45), restarted.loadOffset(context.Background()))
}

func TestSend_FallsBackToPlainText(t *testing.T) {
	api := &fakeAPI{rejectMD: true}
	b := newTestBot(t, api, &echoRouter{}, nil)

	require.NoError(t, b.Send(context.Background(), "1", "**bold", "Markdown"))
	sent := api.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Markdown", sent[0].ParseMode)
	assert.Equal(t, "", sent[1].ParseMode)
}

func TestNotify(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, &echoRouter{}, nil)

	err := b.Notify(context.Background(), reminders.Reminder{ID: uuid.New(), ChatID: "55", Task: "吃藥"})
	require.NoError(t, err)
	sent := api.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "55", sent[0].ChatID)
	assert.Equal(t, "⏰ 提醒: 吃藥", sent[0].Text)

	api.mu.Lock()
	api.sendFailure = true
	api.mu.Unlock()
	err = b.Notify(context.Background(), reminders.Reminder{ChatID: "55", Task: "x"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, reminders.ErrUndeliverable)
}

func TestNotify_BlockedChatIsUndeliverable(t *testing.T) {
	api := &fakeAPI{blocked: true}
	b := newTestBot(t, api, &echoRouter{}, nil)

	err := b.Notify(context.Background(), reminders.Reminder{ID: uuid.New(), ChatID: "55", Task: "吃藥"})
	assert.ErrorIs(t, err, reminders.ErrUndeliverable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	api := &fakeAPI{updates: `{"ok":true,"result":[]}`}
	b := newTestBot(t, api, &echoRouter{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.offsets) > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTruncate(t *testing.T) {
	long := make([]rune, maxMessageRunes+10)
	for i := range long {
		long[i] = '字'
	}
	got := []rune(truncate(string(long)))
	assert.Len(t, got, maxMessageRunes)
	assert.Equal(t, "short", truncate("short"))
}
