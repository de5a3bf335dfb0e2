package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/config"
	"github.com/zaqqye/complab_backend/internal/database"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/testfixtures"
	"github.com/zaqqye/complab_backend/internal/utils"
	"github.com/zaqqye/complab_backend/internal/ws"
)

type server struct {
	t     *testing.T
	db    *gorm.DB
	r     *gin.Engine
	rec   *events.Recorder
	clock *testfixtures.Clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.PasswordCost = bcrypt.MinCost

	db := testfixtures.NewDB(t)
	cfg := &config.Config{
		JWTSecret:     "test-secret",
		JWTExpiresIn:  "60",
		AdminEmail:    "admin@lab.test",
		AdminPassword: "secret123",
		AdminFullName: "Lab Admin",
	}
	log := zaptest.NewLogger(t)
	require.NoError(t, database.SeedAdmin(db, cfg, log))

	rec := &events.Recorder{}
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	r := gin.New()
	Register(r, NewDeps(db, cfg, log, ws.NewHubs(), rec, clock.Now))
	return &server{t: t, db: db, r: r, rec: rec, clock: clock}
}

func (s *server) do(method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *server) login() string {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": "admin@lab.test", "password": "secret123"}, "")
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return body["access_token"].(string)
}

func TestHeartbeatRegisterScenario(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodPost, "/api/heartbeat/192.168.1.5", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Computer not found", body["error"])

	reg := gin.H{"computer_number": "PC-05", "ip_address": "192.168.1.5", "mac_address": "aa:bb:cc:dd:ee:05"}
	w, body = s.do(http.MethodPost, "/api/computer/register", reg, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	computer := body["computer"].(map[string]any)
	assert.Equal(t, true, computer["is_lock"])
	assert.Len(t, s.rec.Named(events.ComputerEvent), 1)

	w, _ = s.do(http.MethodPost, "/api/computer/register", reg, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodPost, "/api/heartbeat/192.168.1.5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_online"])
	assert.NotNil(t, body["last_seen"])

	w, body = s.do(http.MethodGet, "/api/computer/status/192.168.1.5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PC-05", body["computer_number"])
	assert.Equal(t, true, body["is_online"])
	assert.Equal(t, true, body["is_lock"])
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodPost, "/api/computer/register", gin.H{"ip_address": "not-an-ip"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "is required", fields["computer_number"])
	assert.Equal(t, "must be a valid IP address", fields["ip_address"])
}

func TestRFIDUnlockAcceptsNumericUID(t *testing.T) {
	s := newServer(t)
	c := testfixtures.Computer(t, s.db, testfixtures.Online(s.clock.Now()))
	testfixtures.Student(t, s.db, "Ana", "Cruz", "12345")

	w, body := s.do(http.MethodPut, fmt.Sprintf("/api/computer/state/%d", c.ID), json.RawMessage(`{"rfid_uid": 12345}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, body["computer"].(map[string]any)["is_lock"])
	assert.NotNil(t, body["session_log"])

	w, _ = s.do(http.MethodPut, fmt.Sprintf("/api/computer/state/%d", c.ID), gin.H{"rfid_uid": "unknown"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkUnlockEndpoints(t *testing.T) {
	s := newServer(t)
	lab := testfixtures.Lab(t, s.db, "Lab A")
	c := testfixtures.Computer(t, s.db, testfixtures.InLab(lab), testfixtures.Online(s.clock.Now()))
	ana := testfixtures.Student(t, s.db, "Ana", "Cruz", "RF-ANA")
	testfixtures.Student(t, s.db, "Ben", "Reyes", "RF-BEN")
	testfixtures.Assign(t, s.db, ana, c)

	w, body := s.do(http.MethodPost, "/api/computer-unlock", gin.H{"rfid_uid": "RF-BEN"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No computers assigned to this student", body["error"])

	w, body = s.do(http.MethodPost, fmt.Sprintf("/api/unlock-computers-by-lab/%d/RF-ANA", lab.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["computers"], 1)
	assert.Equal(t, "Ana Cruz", body["student"].(map[string]any)["name"])
	assert.Empty(t, body["conflicts"])
}

func TestManualOverrideEndpoints(t *testing.T) {
	s := newServer(t)
	c := testfixtures.Computer(t, s.db)

	w, body := s.do(http.MethodPost, "/api/pc-online/"+c.IPAddress, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["computer"].(map[string]any)["is_online"])

	w, body = s.do(http.MethodPost, "/api/pc-offline/"+c.IPAddress, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["computer"].(map[string]any)["is_online"])

	w, _ = s.do(http.MethodPost, "/api/pc-offline/10.200.0.1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	s := newServer(t)
	c := testfixtures.Computer(t, s.db, testfixtures.Online(s.clock.Now()))
	path := fmt.Sprintf("/api/admin/unlock/%d", c.ID)

	w, _ := s.do(http.MethodPatch, path, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login()
	w, body := s.do(http.MethodPatch, path, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, body["computer"].(map[string]any)["is_lock"])
	assert.Equal(t, "admin_unlock", body["audit_log"].(map[string]any)["action"])

	w, body = s.do(http.MethodPatch, fmt.Sprintf("/api/admin/lock/%d", c.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["computer"].(map[string]any)["is_lock"])

	w, _ = s.do(http.MethodPatch, "/api/admin/unlock/9999", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodGet, "/api/v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", body["role"])
}

func TestCatalogEndpoints(t *testing.T) {
	s := newServer(t)
	token := s.login()

	w, body := s.do(http.MethodPost, "/api/laboratories", gin.H{"name": "Lab A", "code": "lab-a"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	labID := uint(body["laboratory"].(map[string]any)["id"].(float64))

	w, _ = s.do(http.MethodPost, "/api/laboratories", gin.H{"name": "Lab A2", "code": "LAB-A"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(http.MethodPost, "/api/laboratories", gin.H{"name": "Lab B"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Regexp(t, `^LAB-[A-Z2-9]{4}$`, body["laboratory"].(map[string]any)["code"])

	lab := &models.Laboratory{ID: labID}
	c := testfixtures.Computer(t, s.db, testfixtures.InLab(lab))
	testfixtures.Computer(t, s.db)
	ana := testfixtures.Student(t, s.db, "Ana", "Cruz", "RF-1")

	w, body = s.do(http.MethodPost, "/api/computer/bulk-assign", gin.H{"computer_id": c.ID, "student_ids": []uint{ana.ID}}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["assigned"], 1)

	w, body = s.do(http.MethodPost, "/api/computer/bulk-assign", gin.H{"computer_id": c.ID, "student_ids": []uint{ana.ID}}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["conflicts"], 1)

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/computers?laboratory_id=%d", labID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["meta"].(map[string]any)["total"])

	w, body = s.do(http.MethodGet, "/api/computers?all=true", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, _ = s.do(http.MethodGet, "/api/laboratories", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActivityEndpoint(t *testing.T) {
	s := newServer(t)
	c := testfixtures.Computer(t, s.db)
	token := s.login()

	s.do(http.MethodPost, "/api/heartbeat/"+c.IPAddress, nil, "")
	s.clock.Advance(10 * time.Minute)
	s.do(http.MethodPost, "/api/pc-offline/"+c.IPAddress, nil, "")

	w, body := s.do(http.MethodGet, fmt.Sprintf("/api/computers/%d/activity", c.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	entries := body["data"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityOnline, entries[0].(map[string]any)["activity_type"])
	assert.Equal(t, models.ActivityOffline, entries[1].(map[string]any)["activity_type"])

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/computers/%d/activity?limit=1", c.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	entries = body["data"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActivityOffline, entries[0].(map[string]any)["activity_type"])

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/computers/%d/activity?limit=abc", c.ID), nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, body["fields"], "limit")

	w, _ = s.do(http.MethodGet, "/api/computers/9999/activity", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	w, body := s.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}
