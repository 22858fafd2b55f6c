package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/realtime"
	"github.com/fleetdesk/console/internal/repository"
	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/internal/store"
	jwtutil "github.com/fleetdesk/console/pkg/jwt"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testApp struct {
	router    *mux.Router
	store     *store.MemoryStore
	operators *services.OperatorService
	hub       *realtime.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	st := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	hub := realtime.NewHub()

	operatorRepo := repository.NewOperatorRepository(st)
	operatorService := services.NewOperatorService(operatorRepo, testSecret, time.Hour)
	notificationService := services.NewNotificationService(st, clock)

	rt := &Router{
		Auth:          NewAuthHandler(operatorService),
		Entities:      NewEntityHandler(services.NewEntityService(st, nil, clock)),
		Locks:         NewLockHandler(services.NewLockService(st, nil, hub, clock)),
		Notifications: NewNotificationHandler(notificationService),
		Realtime:      NewRealtimeHandler(notificationService, hub),
		JWTSecret:     testSecret,
	}
	return &testApp{router: rt.Build(), store: st, operators: operatorService, hub: hub}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := jwtutil.GenerateToken(userID, userID+" name", role, time.Now(), testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndAuthRequired(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodGet, "/notifications", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	_, err := app.operators.Register(ctx, "Dana@Fleet.kz", "Dana", models.RoleAdmin, "", "s3cret")
	require.NoError(t, err)

	rec := app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "dana@fleet.kz", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "dana@fleet.kz", "password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token    string                 `json:"token"`
		Operator map[string]interface{} `json:"operator"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.Operator["role"])
	_, leaked := resp.Operator["hashed_password"]
	assert.False(t, leaked)

	rec = app.do(t, http.MethodGet, "/notifications", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterOperatorRequiresAdmin(t *testing.T) {
	app := newTestApp(t)
	body := map[string]string{"email": "new@fleet.kz", "name": "New", "role": "viewer", "password": "pw"}

	rec := app.do(t, http.MethodPost, "/admin/operators", token(t, "viewer-1", models.RoleViewer), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/admin/operators", token(t, "admin-1", models.RoleAdmin), body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodPost, "/admin/operators", token(t, "admin-1", models.RoleAdmin), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	app := newTestApp(t)
	adminTok := token(t, "admin-1", models.RoleAdmin)
	viewerTok := token(t, "viewer-1", models.RoleViewer)

	spec := map[string]interface{}{
		"title":        "Payday",
		"message":      "Payouts on Friday",
		"type":         "announcement",
		"target_users": "role:viewer",
		"expires_in":   60000,
	}
	rec := app.do(t, http.MethodPost, "/admin/notifications", viewerTok, spec)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/admin/notifications", adminTok, map[string]interface{}{"title": "x", "type": "promo", "target_users": "all"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/admin/notifications", adminTok, map[string]interface{}{"title": "x", "type": "system", "target_users": "role:owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/admin/notifications", adminTok, spec)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	decode(t, rec, &created)
	id := created["id"]
	require.NotEmpty(t, id)

	var view services.NotificationView
	rec = app.do(t, http.MethodGet, "/notifications", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Empty(t, view.Notifications, "viewer-targeted message is hidden from admins")

	rec = app.do(t, http.MethodGet, "/notifications", viewerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	require.Len(t, view.Notifications, 1)
	assert.Equal(t, "Payday", view.Notifications[0].Title)
	assert.Equal(t, 1, view.UnreadCount)

	rec = app.do(t, http.MethodPost, "/notifications/"+id+"/read", viewerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view = services.NotificationView{}
	rec = app.do(t, http.MethodGet, "/notifications", viewerTok, nil)
	decode(t, rec, &view)
	assert.Zero(t, view.UnreadCount)
	assert.True(t, view.ReadIDs[id])

	rec = app.do(t, http.MethodPost, "/notifications/clear-read", viewerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view = services.NotificationView{}
	rec = app.do(t, http.MethodGet, "/notifications", viewerTok, nil)
	decode(t, rec, &view)
	assert.Empty(t, view.Notifications)
}

func TestMarkAllWithoutIDsUsesVisibleNotifications(t *testing.T) {
	app := newTestApp(t)
	adminTok := token(t, "admin-1", models.RoleAdmin)

	for _, title := range []string{"a", "b"} {
		rec := app.do(t, http.MethodPost, "/admin/notifications", adminTok, map[string]interface{}{
			"title": title, "type": "system", "target_users": "all",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := app.do(t, http.MethodPost, "/notifications/read-all", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view services.NotificationView
	rec = app.do(t, http.MethodGet, "/notifications", adminTok, nil)
	decode(t, rec, &view)
	assert.Len(t, view.Notifications, 2)
	assert.Zero(t, view.UnreadCount)
}

func TestDeleteNotificationAndCleanup(t *testing.T) {
	app := newTestApp(t)
	adminTok := token(t, "admin-1", models.RoleAdmin)
	rec := app.do(t, http.MethodPost, "/admin/notifications", adminTok, map[string]interface{}{
		"title": "a", "type": "system", "target_users": []string{"admin-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	decode(t, rec, &created)

	rec = app.do(t, http.MethodDelete, "/notifications/"+created["id"], adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view services.NotificationView
	rec = app.do(t, http.MethodGet, "/notifications", adminTok, nil)
	decode(t, rec, &view)
	assert.Empty(t, view.Notifications)

	rec = app.do(t, http.MethodPost, "/admin/notifications/cleanup", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleaned map[string]int
	decode(t, rec, &cleaned)
	assert.Equal(t, 0, cleaned["deleted"])
}

func TestLockedRecordEndpoints(t *testing.T) {
	app := newTestApp(t)
	aTok := token(t, "op-a", models.RoleAdmin)
	bTok := token(t, "op-b", models.RoleViewer)

	rec := app.do(t, http.MethodPost, "/drivers", aTok, map[string]interface{}{"full_name": "Aidar", "status": "active"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	decode(t, rec, &created)
	id := created["id"]

	rec = app.do(t, http.MethodPost, "/drivers/"+id+"/lock/toggle", aTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled map[string]bool
	decode(t, rec, &toggled)
	assert.True(t, toggled["is_locked"])

	var aff services.LockAffordance
	rec = app.do(t, http.MethodGet, "/drivers/"+id+"/lock", bTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &aff)
	assert.Equal(t, services.LockAffordance{IsLocked: true, CanEdit: false, LockedBy: "op-a"}, aff)

	rec = app.do(t, http.MethodPatch, "/drivers/"+id+"/status", bTok, map[string]string{"status": "blocked"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	rec = app.do(t, http.MethodPut, "/drivers/"+id, bTok, map[string]interface{}{"full_name": "Other"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	rec = app.do(t, http.MethodDelete, "/drivers/"+id, bTok, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = app.do(t, http.MethodPut, "/drivers/"+id, aTok, map[string]interface{}{
		"full_name": "Aidar",
		"lock":      map[string]interface{}{"is_locked": true, "locked_by": "op-b"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPatch, "/drivers/"+id+"/status", aTok, map[string]string{"status": "blocked"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var driver models.Driver
	rec = app.do(t, http.MethodGet, "/drivers/"+id, bTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &driver)
	assert.Equal(t, "blocked", driver.Status)
	require.NotNil(t, driver.Lock)

	// any operator can release the lock through the toggle
	rec = app.do(t, http.MethodPost, "/drivers/"+id+"/lock/toggle", bTok, map[string]interface{}{"current": driver.Lock})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &toggled)
	assert.False(t, toggled["is_locked"])

	rec = app.do(t, http.MethodDelete, "/drivers/"+id, bTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(t, http.MethodGet, "/drivers/"+id, bTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleMissingRecord(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/transactions/ghost/lock/toggle", token(t, "op-a", models.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/operators/ghost", token(t, "op-a", models.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationFeedWebSocket(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/ws?token=" + token(t, "viewer-1", models.RoleViewer)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame notificationFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "notifications", frame.Type)
	assert.Empty(t, frame.Notifications)

	rec := app.do(t, http.MethodPost, "/admin/notifications", token(t, "admin-1", models.RoleAdmin), map[string]interface{}{
		"title": "Live", "type": "system", "target_users": "all",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Notifications, 1)
	assert.Equal(t, "Live", frame.Notifications[0].Title)
	assert.Equal(t, 1, frame.UnreadCount)
}

func TestStalledFeedDoesNotBlockWriters(t *testing.T) {
	defer func(d time.Duration) { feedWriteWait = d }(feedWriteWait)
	feedWriteWait = 100 * time.Millisecond

	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/ws?token=" + token(t, "viewer-1", models.RoleViewer)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame notificationFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))

	// the client stops reading; frames grow until the socket buffers fill
	adminTok := token(t, "admin-1", models.RoleAdmin)
	body := strings.Repeat("x", 32<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 60; i++ {
			rec := app.do(t, http.MethodPost, "/admin/notifications", adminTok, map[string]interface{}{
				"title": "Bulk", "message": body, "type": "system", "target_users": "all",
			})
			assert.Equal(t, http.StatusCreated, rec.Code)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("sends blocked behind a stalled feed")
	}
	assert.Eventually(t, func() bool { return app.store.SubscriberCount() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestCueWebSocket(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	tok := token(t, "op-a", models.RoleAdmin)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cues?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := app.do(t, http.MethodPost, "/drivers", tok, map[string]interface{}{"full_name": "Aidar"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	decode(t, rec, &created)

	rec = app.do(t, http.MethodPost, "/drivers/"+created["id"]+"/lock/toggle", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var msg struct {
		Type    string             `json:"type"`
		Payload services.LockEvent `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "lock_cue", msg.Type)
	assert.Equal(t, created["id"], msg.Payload.DocID)
	assert.True(t, msg.Payload.Locked)
}
