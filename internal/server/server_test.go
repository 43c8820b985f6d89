package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"tooldo/internal/config"
	"tooldo/internal/db"
	"tooldo/internal/domain"
	"tooldo/internal/engine"
	"tooldo/internal/migrate"
)

type testServer struct {
	URL     string
	Company domain.Company
	Master  domain.Member
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	company, master, err := e.InitCompany(context.Background(), engine.InitCompanyOptions{
		CompanyName: "Acme",
		FirstName:   "Olga",
		LastName:    "Prime",
		Email:       "olga@acme.test",
	})
	if err != nil {
		t.Fatalf("init company: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyMemberHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Company: company,
		Master:  master,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asMember(id string) map[string]string {
	return map[string]string{"X-Member-Id": id}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginAndBearer(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/dev/login", map[string]any{
		"member_id": srv.Master.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.MemberID != srv.Master.ID || me.Role != "master" {
		t.Fatalf("unexpected principal %+v", me)
	}
	if len(me.Permissions) == 0 {
		t.Fatal("master should carry permissions")
	}
}

func TestActionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := asMember(srv.Master.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/actions", map[string]any{
		"title":     "Ship onboarding flow",
		"priority":  "HIGH",
		"checklist": []string{"draft", "review"},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create action status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Action
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	if created.Status != domain.StatusTodo || len(created.Checklist) != 2 {
		t.Fatalf("unexpected created action %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+created.ID, map[string]any{
		"status": "IN_PROGRESS",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start action status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+created.ID, map[string]any{
		"status": "DONE",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete action status %d: %s", res.StatusCode, string(data))
	}
	var done domain.Action
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal done action: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed action should carry completed_at")
	}

	// DONE may only reopen to TODO.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+created.ID, map[string]any{
		"status": "IN_PROGRESS",
	}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid transition, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
}

func TestMemberRoleRulesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/members", map[string]any{
		"first_name": "Igor",
		"role":       "manager",
	}, asMember(srv.Master.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add manager status %d: %s", res.StatusCode, string(data))
	}
	var manager domain.Member
	if err := json.Unmarshal(data, &manager); err != nil {
		t.Fatalf("unmarshal manager: %v", err)
	}

	// Managers may only manage executors.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/members", map[string]any{
		"first_name": "Ana",
		"role":       "admin",
	}, asMember(manager.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden_role" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/members", map[string]any{
		"first_name": "Rui",
		"role":       "executor",
	}, asMember(manager.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("manager should add executor, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDashboardOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := asMember(srv.Master.ID)

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/actions", map[string]any{
			"title": title,
		}, headers)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", title, res.StatusCode, string(data))
		}
		var a domain.Action
		if err := json.Unmarshal(data, &a); err != nil {
			t.Fatalf("unmarshal action: %v", err)
		}
		ids = append(ids, a.ID)
	}
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+ids[0], map[string]any{
		"status": "DONE",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/companies/"+srv.Company.ID+"/dashboard?preset=this-week", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	var d engine.Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if d.Summary.TotalDeliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", d.Summary.TotalDeliveries)
	}
	if len(d.Trend) != 7 {
		t.Fatalf("trend should cover the whole week, got %d points", len(d.Trend))
	}
	if d.Label == "" {
		t.Fatal("dashboard label should be set")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/companies/"+srv.Company.ID+"/dashboard?preset=bogus", nil, headers)
	if res.StatusCode != http.StatusBadRequest && res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected rejection of unknown preset, got %d: %s", res.StatusCode, string(data))
	}
}

func TestExecutorListScopingOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	master := asMember(srv.Master.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/members", map[string]any{
		"first_name": "Rui",
		"role":       "executor",
	}, master)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add executor status %d: %s", res.StatusCode, string(data))
	}
	var executor domain.Member
	if err := json.Unmarshal(data, &executor); err != nil {
		t.Fatalf("unmarshal executor: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/actions", map[string]any{
		"title":          "mine",
		"responsible_id": executor.ID,
	}, master)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create assigned status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+srv.Company.ID+"/actions", map[string]any{
		"title": "not mine",
	}, master)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create unassigned status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/actions", nil, asMember(executor.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list as executor status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedActions
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Title != "mine" {
		t.Fatalf("executor should only see assigned actions, got %+v", page.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/actions", nil, master)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list as master status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("master should see both actions, got %d", len(page.Items))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"name": "ci",
	}, asMember(srv.Master.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("plaintext key should be returned once")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.MemberID != srv.Master.ID || me.Source != "api_key" {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": "td_not-a-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d: %s", res.StatusCode, string(data))
	}
}

func TestHandleErrorKeepsExistingStatus(t *testing.T) {
	// a message containing "required" must not demote an error that already
	// carries its own status and code
	pre := newAPIError(http.StatusUnauthorized, "unauthorized", "bearer token required", nil)
	got := handleError(pre)
	if got != pre {
		t.Fatalf("expected the original error back, got %#v", got)
	}
	if got.GetStatus() != http.StatusUnauthorized {
		t.Fatalf("status rewritten to %d", got.GetStatus())
	}
}
