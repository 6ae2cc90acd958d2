package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/groveapp/grove/internal/auth"
	"github.com/groveapp/grove/internal/db"
	"github.com/groveapp/grove/internal/models"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/workspace"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	workspace.ClearProvisionedCache()
	t.Cleanup(workspace.ClearProvisionedCache)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	router := NewRouter(StartOpts{
		DB:        gdb,
		JWTSecret: testSecret,
		Outbound:  notify.NewOutbound(nil),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, gdb
}

func bearerFor(t *testing.T, userID, email string) string {
	t.Helper()
	token, err := auth.Mint(auth.Identity{UserID: userID, Email: email}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

// do performs a JSON request as the given user and decodes the response
// into out (when non-nil).
func do(t *testing.T, srv *httptest.Server, method, path, userID string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerFor(t, userID, userID+"@example.com"))

	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := srv.Client().Get(srv.URL + "/api/v1/todos")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/todos", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", res.StatusCode)
	}
}

func TestFirstRequestProvisionsPersonalWorkspace(t *testing.T) {
	srv, gdb := newTestServer(t)

	var listed struct {
		Workspaces []models.Workspace `json:"workspaces"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/workspaces", "fresh-user", nil, &listed); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(listed.Workspaces) != 1 || listed.Workspaces[0].Name != "Personal" {
		t.Fatalf("workspaces = %+v, want one Personal", listed.Workspaces)
	}

	var count int64
	gdb.Model(&models.WorkspaceMember{}).Where("user_id = ?", "fresh-user").Count(&count)
	if count != 1 {
		t.Errorf("memberships = %d, want 1", count)
	}
}

func TestTodoLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	var created models.Task
	code := do(t, srv, http.MethodPost, "/api/v1/todos", "alice", map[string]interface{}{
		"title": "write handler tests",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", code)
	}
	if created.ID == "" || created.Title != "write handler tests" {
		t.Fatalf("created = %+v", created)
	}

	var fetched models.Task
	if code := do(t, srv, http.MethodGet, "/api/v1/todos/"+created.ID, "alice", nil, &fetched); code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", code)
	}

	// Another user cannot see a personal task.
	if code := do(t, srv, http.MethodGet, "/api/v1/todos/"+created.ID, "bob", nil, nil); code != http.StatusNotFound {
		t.Errorf("cross-user get status = %d, want 404", code)
	}

	var updated models.Task
	code = do(t, srv, http.MethodPatch, "/api/v1/todos/"+created.ID, "alice", map[string]interface{}{
		"completed": true,
	}, &updated)
	if code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", code)
	}
	if !updated.Completed || updated.CompletedAt == nil {
		t.Error("completion not applied")
	}

	if code := do(t, srv, http.MethodDelete, "/api/v1/todos/"+created.ID, "alice", nil, nil); code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", code)
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/todos/"+created.ID, "alice", nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", code)
	}
}

func TestTodoValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	if code := do(t, srv, http.MethodPost, "/api/v1/todos", "alice", map[string]interface{}{}, nil); code != http.StatusBadRequest {
		t.Errorf("missing title status = %d, want 400", code)
	}
}

func TestWorkspaceMembershipFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	var ws models.Workspace
	code := do(t, srv, http.MethodPost, "/api/v1/workspaces", "alice", map[string]interface{}{
		"name": "Team Space",
	}, &ws)
	if code != http.StatusCreated {
		t.Fatalf("create workspace status = %d, want 201", code)
	}

	code = do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", "alice", map[string]interface{}{
		"user_id": "bob", "role": "member",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("add member status = %d, want 201", code)
	}

	// Members cannot add members.
	code = do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", "bob", map[string]interface{}{
		"user_id": "carol", "role": "viewer",
	}, nil)
	if code != http.StatusForbidden {
		t.Errorf("member adding member status = %d, want 403", code)
	}

	// Unknown role names are rejected before hitting the service.
	code = do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", "alice", map[string]interface{}{
		"user_id": "carol", "role": "emperor",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad role status = %d, want 400", code)
	}

	// Ownership transfer needs an admin target.
	code = do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/transfer", "alice", map[string]interface{}{
		"new_owner_id": "bob",
	}, nil)
	if code != http.StatusForbidden {
		t.Errorf("transfer to member status = %d, want 403", code)
	}

	code = do(t, srv, http.MethodPatch, "/api/v1/workspaces/"+ws.ID+"/members/bob", "alice", map[string]interface{}{
		"role": "admin",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("promote status = %d, want 200", code)
	}
	code = do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/transfer", "alice", map[string]interface{}{
		"new_owner_id": "bob",
	}, nil)
	if code != http.StatusNoContent {
		t.Errorf("transfer status = %d, want 204", code)
	}
}

func TestInvitationFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	var ws models.Workspace
	if code := do(t, srv, http.MethodPost, "/api/v1/workspaces", "alice", map[string]interface{}{"name": "Inviting"}, &ws); code != http.StatusCreated {
		t.Fatalf("create workspace: %d", code)
	}

	var created struct {
		Invitation models.Invitation `json:"invitation"`
		Token      string            `json:"token"`
	}
	code := do(t, srv, http.MethodPost, "/api/v1/invitations", "alice", map[string]interface{}{
		"workspace_id": ws.ID, "email": "bob@example.com", "role": "member",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create invitation status = %d, want 201", code)
	}
	if created.Token == "" {
		t.Fatal("no raw token in response")
	}
	if created.Invitation.TokenHash == created.Token {
		t.Error("response leaked the stored hash as the token")
	}

	var member models.WorkspaceMember
	code = do(t, srv, http.MethodPost, "/api/v1/invitations/accept", "bob", map[string]interface{}{
		"token": created.Token,
	}, &member)
	if code != http.StatusOK {
		t.Fatalf("accept status = %d, want 200", code)
	}
	if member.WorkspaceID != ws.ID {
		t.Errorf("joined workspace = %s, want %s", member.WorkspaceID, ws.ID)
	}

	// Replay fails.
	code = do(t, srv, http.MethodPost, "/api/v1/invitations/accept", "bob", map[string]interface{}{
		"token": created.Token,
	}, nil)
	if code != http.StatusConflict {
		t.Errorf("replay status = %d, want 409", code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	var ws models.Workspace
	if code := do(t, srv, http.MethodPost, "/api/v1/workspaces", "alice", map[string]interface{}{"name": "Noisy"}, &ws); code != http.StatusCreated {
		t.Fatalf("create workspace: %d", code)
	}
	if code := do(t, srv, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", "alice", map[string]interface{}{
		"user_id": "bob", "role": "member",
	}, nil); code != http.StatusCreated {
		t.Fatalf("add member: %d", code)
	}

	// Bob was notified about being added.
	var feed struct {
		Notifications []models.Notification `json:"notifications"`
		NextCursor    string                `json:"next_cursor"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/notifications", "bob", nil, &feed); code != http.StatusOK {
		t.Fatalf("feed status = %d, want 200", code)
	}
	if len(feed.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(feed.Notifications))
	}

	var count struct {
		Unread int64 `json:"unread"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/notifications/unread_count", "bob", nil, &count); code != http.StatusOK {
		t.Fatal("unread_count failed")
	}
	if count.Unread != 1 {
		t.Errorf("unread = %d, want 1", count.Unread)
	}

	nid := feed.Notifications[0].ID
	if code := do(t, srv, http.MethodPost, "/api/v1/notifications/"+nid+"/read", "bob", nil, nil); code != http.StatusNoContent {
		t.Errorf("mark read status = %d, want 204", code)
	}
	// Another user cannot touch it.
	if code := do(t, srv, http.MethodPost, "/api/v1/notifications/"+nid+"/read", "alice", nil, nil); code != http.StatusNotFound {
		t.Errorf("cross-user mark read status = %d, want 404", code)
	}

	// Preferences round-trip.
	if code := do(t, srv, http.MethodPut, "/api/v1/notifications/preferences", "bob", map[string]interface{}{
		"channel": "in_app", "enabled": false,
	}, nil); code != http.StatusOK {
		t.Errorf("upsert pref status = %d, want 200", code)
	}
	var prefs struct {
		Preferences []models.NotificationPref `json:"preferences"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/notifications/preferences", "bob", nil, &prefs); code != http.StatusOK {
		t.Fatal("list prefs failed")
	}
	if len(prefs.Preferences) != 1 || prefs.Preferences[0].Enabled {
		t.Errorf("prefs = %+v, want one disabled", prefs.Preferences)
	}
}

func TestActivityEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var ws models.Workspace
	if code := do(t, srv, http.MethodPost, "/api/v1/workspaces", "alice", map[string]interface{}{"name": "Audited"}, &ws); code != http.StatusCreated {
		t.Fatalf("create workspace: %d", code)
	}
	if code := do(t, srv, http.MethodPost, "/api/v1/todos", "alice", map[string]interface{}{
		"title": "tracked", "workspace_id": ws.ID,
	}, nil); code != http.StatusCreated {
		t.Fatalf("create todo: %d", code)
	}

	var got struct {
		Activity []models.ActivityLog `json:"activity"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/activity?workspace_id="+ws.ID, "alice", nil, &got); code != http.StatusOK {
		t.Fatalf("activity status = %d, want 200", code)
	}
	if len(got.Activity) != 2 {
		t.Fatalf("activity rows = %d, want 2 (workspace.created, task.created)", len(got.Activity))
	}

	// Non-members get 404 for the workspace.
	if code := do(t, srv, http.MethodGet, "/api/v1/activity?workspace_id="+ws.ID, "mallory", nil, nil); code != http.StatusNotFound {
		t.Errorf("non-member activity status = %d, want 404", code)
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/activity", "alice", nil, nil); code != http.StatusBadRequest {
		t.Errorf("missing workspace_id status = %d, want 400", code)
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	srv, gdb := newTestServer(t)

	// Provision the caller, then break the storage layer underneath.
	if code := do(t, srv, http.MethodGet, "/api/v1/todos", "uma", nil, nil); code != http.StatusOK {
		t.Fatalf("warm-up list status = %d, want 200", code)
	}
	if err := gdb.Migrator().DropTable(&models.Task{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	var got struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if code := do(t, srv, http.MethodGet, "/api/v1/todos", "uma", nil, &got); code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if got.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", got.Error.Code)
	}
	if got.Error.Message != "internal server error" {
		t.Errorf("message = %q, want the generic text", got.Error.Message)
	}
	if strings.Contains(got.Error.Message, "no such table") {
		t.Errorf("message leaks storage detail: %q", got.Error.Message)
	}
}

func TestRateLimit(t *testing.T) {
	workspace.ClearProvisionedCache()
	t.Cleanup(workspace.ClearProvisionedCache)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(StartOpts{
		DB:               gdb,
		JWTSecret:        testSecret,
		Outbound:         notify.NewOutbound(nil),
		RateLimitEnabled: true,
		RateLimitRPS:     1,
		RateLimitBurst:   2,
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	// The bucket is keyed by verified user ID, so fresh tokens for the
	// same user share it.
	var last int
	for i := 0; i < 5; i++ {
		last = do(t, srv, http.MethodGet, "/api/v1/workspaces", "alice", nil, nil)
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}

	// Another user has their own bucket.
	if code := do(t, srv, http.MethodGet, "/api/v1/workspaces", "bob", nil, nil); code != http.StatusOK {
		t.Errorf("second user status = %d, want 200", code)
	}

	// Garbage tokens are rejected by auth before they reach the limiter.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/workspaces", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer not-a-token")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", res.StatusCode)
	}
}

func TestStart_Validation(t *testing.T) {
	if err := Start(context.Background(), StartOpts{}); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v, want db required", err)
	}

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := Start(context.Background(), StartOpts{DB: gdb}); err == nil || !strings.Contains(err.Error(), "jwt secret") {
		t.Errorf("err = %v, want jwt secret required", err)
	}
}

func TestStart_GracefulShutdown(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	port := 18080 + int(time.Now().UnixNano()%1000)
	go func() {
		errCh <- Start(ctx, StartOpts{DB: gdb, JWTSecret: testSecret, Port: port})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
