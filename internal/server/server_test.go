package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/db"
	"sitetrack/internal/domain"
	"sitetrack/internal/engine"
	"sitetrack/internal/migrate"
	"sitetrack/internal/repo"
	"sitetrack/internal/workflow"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Token  string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("test"))
	if err := e.Repo.UpsertUser(context.Background(), domain.User{
		Name:         "admin",
		PasswordHash: repo.HashPassword("changeme"),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
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

	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
	}
	ts.close = func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	}
	t.Cleanup(ts.close)

	// log in once; most tests run authenticated
	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/auth/login", map[string]any{
		"name": "admin", "password": "changeme",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	ts.Token = login.Token
	return ts
}

func (s *testServer) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Token}
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

func createProject(t *testing.T, srv *testServer, id string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"id": id, "name": "Overhead Crane Gantry",
		"start_date": "2026-03-01", "deadline": "2026-06-01", "budget": 100000,
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d, want 401", res.StatusCode)
	}

	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"name": "admin", "password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d: %s", res.StatusCode, string(data))
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"name": "admin", "password": "changeme",
	}, nil)
	var session *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "sitetrack_session" {
			session = c
		}
	}
	if session == nil {
		t.Fatal("login did not set sitetrack_session cookie")
	}
	if session.SameSite != http.SameSiteStrictMode || !session.HttpOnly {
		t.Fatalf("cookie attributes: SameSite=%v HttpOnly=%v", session.SameSite, session.HttpOnly)
	}
	if !session.Expires.After(time.Now()) {
		t.Fatalf("cookie expiry not in the future: %v", session.Expires)
	}

	// cookie alone authenticates
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/auth/me", nil)
	req.AddCookie(session)
	meRes, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer meRes.Body.Close()
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth status %d", meRes.StatusCode)
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv := newTestServer(t)
	createProject(t, srv, "HT-001")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/HT-001/tasks", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != workflow.Len() {
		t.Fatalf("seeded %d tasks, want %d", len(tasks), workflow.Len())
	}
	if tasks[0].ID != "HT-001-T1" || tasks[0].Status != domain.TaskPending {
		t.Fatalf("first task %+v", tasks[0])
	}

	// duplicate id conflicts
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"id": "HT-001", "name": "dup",
	}, srv.auth())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status %d: %s", res.StatusCode, string(data))
	}

	// partial update
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/HT-001", map[string]any{
		"client_name": "Hi-Tek Manufacturing",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	if p.ClientName != "Hi-Tek Manufacturing" || p.Name != "Overhead Crane Gantry" {
		t.Fatalf("partial update result: %+v", p)
	}

	// delete cascades
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/projects/HT-001", nil, srv.auth())
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/HT-001/tasks", nil, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("tasks after delete: status %d, want 404", res.StatusCode)
	}
}

func TestTaskProgressOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	createProject(t, srv, "HT-001")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/HT-001-T1", map[string]any{
		"progress": 55,
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	_ = json.Unmarshal(data, &task)
	if task.Progress != 55 || task.Status != domain.TaskInProgress {
		t.Fatalf("task after update: %+v", task)
	}

	// step 5 is locked until 1..4 are done
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/HT-001-T5", map[string]any{
		"progress": 10,
	}, srv.auth())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("locked step status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "step_locked") {
		t.Fatalf("expected step_locked code: %s", string(data))
	}

	// force overrides
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/HT-001-T5", map[string]any{
		"progress": 10, "force": true,
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forced update status %d: %s", res.StatusCode, string(data))
	}
}

func TestMaterialsAndDashboard(t *testing.T) {
	srv := newTestServer(t)
	createProject(t, srv, "HT-001")

	// 200 bags already went out before the line was registered; the new
	// dispatch of 300 accumulates on top of that starting total
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/HT-001/materials", map[string]any{
		"name": "Cement", "required_quantity": 1000, "dispatched_quantity": 200, "unit": "bags",
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create material status %d: %s", res.StatusCode, string(data))
	}
	var m MaterialResponse
	_ = json.Unmarshal(data, &m)
	if m.Dispatched != 200 {
		t.Fatalf("starting dispatched = %v, want 200", m.Dispatched)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/HT-001/materials/Cement/dispatch", map[string]any{
		"quantity": 300,
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status %d: %s", res.StatusCode, string(data))
	}
	m = MaterialResponse{}
	_ = json.Unmarshal(data, &m)
	if m.Dispatched != 500 || m.Balance != 500 || m.DispatchPercent != 50 {
		t.Fatalf("material after dispatch: %+v", m)
	}

	// dispatching an unknown material is a 404
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/HT-001/materials/Steel/dispatch", map[string]any{
		"quantity": 5,
	}, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown material status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/HT-001/expenses", map[string]any{
		"date": "2026-03-05", "description": "Steel plates", "amount": 15000,
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create expense status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/HT-001/dashboard", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	var dash DashboardResponse
	if err := json.Unmarshal(data, &dash); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if dash.KPIs.MaterialPercent != 50 {
		t.Fatalf("material percent = %d, want 50", dash.KPIs.MaterialPercent)
	}
	if dash.KPIs.TotalExpenses != 15000 || dash.KPIs.BudgetRemaining != 85000 {
		t.Fatalf("budget KPIs: %+v", dash.KPIs)
	}
	if len(dash.Tasks) != workflow.Len() {
		t.Fatalf("dashboard tasks: %d", len(dash.Tasks))
	}
}

func TestOpenAPIDocStableAcrossReads(t *testing.T) {
	srv := newTestServer(t)

	var first []byte
	for i := 0; i < 2; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, srv.auth())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("openapi status %d", res.StatusCode)
		}
		if !strings.Contains(string(data), "SiteTrack API") {
			t.Fatalf("unexpected openapi doc: %.80s", string(data))
		}
		if i == 0 {
			first = data
		} else if !bytes.Equal(first, data) {
			t.Fatal("openapi doc changed between reads")
		}
	}
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	payload := map[string]any{
		"projects": []map[string]any{
			{"id": "LG-01", "projectName": "Legacy Shed", "projectValue": "50000"},
		},
		"materials": []map[string]any{
			{"projectId": "LG-01", "materialName": "Rod", "requiredQty": "100", "dispatchedQty": "25"},
		},
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/import", payload, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}
	var rep ImportResponse
	_ = json.Unmarshal(data, &rep)
	if rep.Projects != 1 || rep.Materials != 1 {
		t.Fatalf("import counts: %+v", rep)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/LG-01", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get imported project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	if p.Name != "Legacy Shed" || p.Budget != 50000 {
		t.Fatalf("imported project: %+v", p)
	}
}
