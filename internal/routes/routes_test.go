package routes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/notify"
	"medical-dictation-server/internal/query"
	"medical-dictation-server/internal/search"
	"medical-dictation-server/internal/storage"
	"medical-dictation-server/internal/testutil"
	"medical-dictation-server/internal/utils"
)

type response struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type server struct {
	t      *testing.T
	db     *gorm.DB
	cfg    *config.Config
	router *gin.Engine
	sc     testutil.Scenario
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenTestDB(t)
	cfg := &config.Config{
		Environment:               "development",
		JWTSecret:                 "access",
		JWTRefreshSecret:          "refresh",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 1,
	}
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	dispatcher := notify.NewDispatcher(notify.LogSender{Log: testutil.Logger()}, nil, testutil.Logger(), 0, nil)
	t.Cleanup(dispatcher.Wait)
	g := graph.NewStore(db)
	svc := dictation.NewService(dictation.Deps{
		DB:            db,
		Graph:         g,
		Access:        access.NewEvaluator(db, g, access.SearchByRole),
		Query:         query.NewStore(db),
		Search:        search.NewComposer(db),
		Blobs:         blobs,
		Notifier:      dispatcher,
		Log:           testutil.Logger(),
		MaxAudioBytes: 1 << 20,
	})
	router := gin.New()
	SetupRoutes(router, db, cfg, svc)
	return &server{t: t, db: db, cfg: cfg, router: router, sc: testutil.SeedScenario(t, db)}
}

func (s *server) token(u *models.User) string {
	s.t.Helper()
	tok, _, err := utils.GenerateTokens(u, s.cfg)
	if err != nil {
		s.t.Fatalf("GenerateTokens: %v", err)
	}
	return tok
}

func (s *server) do(method, path, token string, body any) (int, response, []byte) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp, w.Body.Bytes()
}

func (s *server) expect(method, path string, u *models.User, body any, want int) response {
	s.t.Helper()
	token := ""
	if u != nil {
		token = s.token(u)
	}
	code, resp, raw := s.do(method, path, token, body)
	if code != want {
		s.t.Fatalf("%s %s: status %d want %d: %s", method, path, code, want, raw)
	}
	return resp
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", r.Data, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, _, _ := s.do(http.MethodGet, "/health", "", nil)
	if code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
}

func TestLoginAndRefreshRotation(t *testing.T) {
	s := newServer(t)
	doctor := s.sc.Doctor

	s.expect(http.MethodPost, "/api/v1/auth/login", nil,
		map[string]string{"email": doctor.Email, "password": "wrong"}, http.StatusUnauthorized)

	resp := s.expect(http.MethodPost, "/api/v1/auth/login", nil,
		map[string]string{"email": doctor.Email, "password": testutil.Password}, http.StatusOK)
	login := decode[struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}](t, resp)
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", login)
	}

	code, _, _ := s.do(http.MethodGet, "/api/v1/auth/profile", login.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("profile with fresh token: %d", code)
	}

	resp = s.expect(http.MethodPost, "/api/v1/auth/refresh-token", nil,
		map[string]string{"refreshToken": login.RefreshToken}, http.StatusOK)
	rotated := decode[struct {
		RefreshToken string `json:"refreshToken"`
	}](t, resp)
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}
	// The old refresh token is revoked.
	s.expect(http.MethodPost, "/api/v1/auth/refresh-token", nil,
		map[string]string{"refreshToken": login.RefreshToken}, http.StatusUnauthorized)

	code, _, _ = s.do(http.MethodPost, "/api/v1/auth/logout", login.AccessToken, map[string]string{"refreshToken": rotated.RefreshToken})
	if code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	s.expect(http.MethodPost, "/api/v1/auth/refresh-token", nil,
		map[string]string{"refreshToken": rotated.RefreshToken}, http.StatusUnauthorized)
}

func TestInactiveAccountsCannotLogIn(t *testing.T) {
	s := newServer(t)
	if err := s.db.Model(s.sc.Patient).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	s.expect(http.MethodPost, "/api/v1/auth/login", nil,
		map[string]string{"email": s.sc.Patient.Email, "password": testutil.Password}, http.StatusForbidden)
}

func TestDictationFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	sc := s.sc
	audio := base64.StdEncoding.EncodeToString([]byte("fake wav bytes"))

	s.expect(http.MethodPost, "/api/v1/voices", sc.Assistant,
		map[string]string{"patientId": sc.Patient.ID, "audio": audio}, http.StatusForbidden)
	resp := s.expect(http.MethodPost, "/api/v1/voices", sc.Doctor, map[string]string{
		"patientId": sc.Patient.ID, "title": "Knee follow-up", "filename": "knee.wav", "audio": audio,
	}, http.StatusCreated)
	voice := decode[models.Voice](t, resp)

	queue := decode[[]models.Voice](t, s.expect(http.MethodGet, "/api/v1/voices/assistant/"+sc.Assistant.ID, sc.Assistant, nil, http.StatusOK))
	if len(queue) != 1 || queue[0].ID != voice.ID {
		t.Fatalf("assistant queue: %+v", queue)
	}

	s.expect(http.MethodGet, "/api/v1/voices/"+voice.ID+"/audio", sc.Assistant, nil, http.StatusForbidden)
	resp = s.expect(http.MethodPost, "/api/v1/notes", sc.Assistant,
		map[string]string{"voiceId": voice.ID, "content": "Knee swelling reduced"}, http.StatusCreated)
	note := decode[models.Note](t, resp)
	s.expect(http.MethodPost, "/api/v1/notes", sc.Assistant2,
		map[string]string{"voiceId": voice.ID}, http.StatusConflict)
	s.expect(http.MethodGet, "/api/v1/voices/"+voice.ID, sc.Assistant2, nil, http.StatusForbidden)

	code, _, raw := s.do(http.MethodGet, "/api/v1/voices/"+voice.ID+"/audio", s.token(sc.Assistant), nil)
	if code != http.StatusOK || string(raw) != "fake wav bytes" {
		t.Fatalf("audio: %d %q", code, raw)
	}

	// The pending queue is now empty.
	queue = decode[[]models.Voice](t, s.expect(http.MethodGet, "/api/v1/voices/assistant/"+sc.Assistant.ID, sc.Assistant, nil, http.StatusOK))
	if len(queue) != 0 {
		t.Fatalf("queue after claim: %+v", queue)
	}

	count := decode[map[string]int64](t, s.expect(http.MethodGet, "/api/v1/notes/manager/"+sc.Manager.ID+"?count=true", sc.Manager, nil, http.StatusOK))
	if count["count"] != 1 {
		t.Fatalf("manager note count: %v", count)
	}
	s.expect(http.MethodGet, "/api/v1/notes/manager/"+sc.Manager.ID+"?validated=perhaps", sc.Manager, nil, http.StatusBadRequest)

	results := decode[[]search.Result](t, s.expect(http.MethodGet, "/api/v1/notes/search?text=SWELLING", sc.Doctor, nil, http.StatusOK))
	if len(results) != 1 || results[0].VoiceID != voice.ID {
		t.Fatalf("search: %+v", results)
	}

	s.expect(http.MethodPut, "/api/v1/notes/"+note.ID, sc.Assistant, map[string]any{"validated": true}, http.StatusForbidden)
	validated := decode[models.Note](t, s.expect(http.MethodPut, "/api/v1/notes/"+note.ID, sc.Doctor, map[string]any{"validated": true}, http.StatusOK))
	if !validated.Validated {
		t.Fatalf("note not validated")
	}

	s.expect(http.MethodPost, "/api/v1/notes/remarques", sc.Manager,
		map[string]string{"noteId": note.ID, "remarque": "Add the dosage"}, http.StatusCreated)
	remarques := decode[[]models.RemarqueNote](t, s.expect(http.MethodGet, "/api/v1/notes/"+note.ID+"/remarques", sc.Assistant, nil, http.StatusOK))
	if len(remarques) != 1 {
		t.Fatalf("remarques: %+v", remarques)
	}
	s.expect(http.MethodPatch, "/api/v1/notes/remarques/"+remarques[0].ID+"/seen", sc.Assistant,
		map[string]bool{"seen": true}, http.StatusOK)

	s.expect(http.MethodDelete, "/api/v1/voices/"+voice.ID, sc.Manager, nil, http.StatusForbidden)
	s.expect(http.MethodDelete, "/api/v1/voices/"+voice.ID, sc.Doctor, nil, http.StatusOK)
	s.expect(http.MethodGet, "/api/v1/notes/"+note.ID, sc.Doctor, nil, http.StatusNotFound)
}

func TestUsersAndRelationshipsOverHTTP(t *testing.T) {
	s := newServer(t)
	sc := s.sc

	s.expect(http.MethodGet, "/api/v1/users", sc.Doctor, nil, http.StatusForbidden)
	users := decode[[]models.UserSanitized](t, s.expect(http.MethodGet, "/api/v1/users?role=assistant", sc.Superuser, nil, http.StatusOK))
	if len(users) != 2 {
		t.Fatalf("assistants: %+v", users)
	}
	s.expect(http.MethodGet, "/api/v1/users?role=wizard", sc.Superuser, nil, http.StatusBadRequest)

	resp := s.expect(http.MethodPost, "/api/v1/users", sc.Superuser, map[string]any{
		"fullName": "Manager M2", "email": "m2@example.test", "password": "password123", "role": "manager",
	}, http.StatusCreated)
	m2 := decode[models.UserSanitized](t, resp)
	s.expect(http.MethodPost, "/api/v1/users", sc.Superuser, map[string]any{
		"fullName": "Dup", "email": "m2@example.test", "password": "password123", "role": "manager",
	}, http.StatusConflict)

	s.expect(http.MethodPost, "/api/v1/relationships/doctor-manager/"+sc.Doctor.ID+"/"+m2.ID, sc.Doctor, nil, http.StatusForbidden)
	s.expect(http.MethodPost, "/api/v1/relationships/doctor-manager/"+sc.Doctor.ID+"/"+m2.ID, sc.Superuser, nil, http.StatusCreated)
	managers := decode[[]models.UserSanitized](t, s.expect(http.MethodGet, "/api/v1/relationships/doctors/"+sc.Doctor.ID+"/managers", sc.Doctor, nil, http.StatusOK))
	if len(managers) != 2 {
		t.Fatalf("managers: %+v", managers)
	}
	s.expect(http.MethodGet, "/api/v1/relationships/doctors/"+sc.Doctor.ID+"/managers", sc.Manager, nil, http.StatusForbidden)
	s.expect(http.MethodDelete, "/api/v1/relationships/doctor-manager/"+sc.Doctor.ID+"/"+m2.ID, sc.Superuser, nil, http.StatusOK)
	s.expect(http.MethodPost, "/api/v1/relationships/patient-doctor/"+sc.Patient.ID+"/"+sc.Doctor.ID, sc.Superuser, nil, http.StatusBadRequest)
	s.expect(http.MethodDelete, "/api/v1/relationships/manager-manager/"+sc.Manager.ID+"/"+m2.ID, sc.Superuser, nil, http.StatusBadRequest)

	resp = s.expect(http.MethodPost, "/api/v1/users/patients", sc.Doctor,
		map[string]any{"fullName": "New Patient"}, http.StatusCreated)
	patient := decode[models.UserSanitized](t, resp)
	if patient.IsActive {
		t.Fatalf("registered patient should be inactive")
	}
	s.expect(http.MethodPost, "/api/v1/users/patients", sc.Manager,
		map[string]any{"fullName": "Nope"}, http.StatusForbidden)

	full := decode[map[string]any](t, s.expect(http.MethodGet, "/api/v1/users/patients/"+patient.ID, sc.Doctor, nil, http.StatusOK))
	if _, ok := full["email"]; !ok {
		t.Fatalf("doctor should see the full record: %v", full)
	}
	summary := decode[map[string]any](t, s.expect(http.MethodGet, "/api/v1/users/patients/"+patient.ID, sc.Manager, nil, http.StatusOK))
	if _, ok := summary["email"]; ok {
		t.Fatalf("manager should only see a summary: %v", summary)
	}

	s.expect(http.MethodPut, "/api/v1/auth/device-token", sc.Assistant, map[string]string{"deviceToken": "arn:device"}, http.StatusOK)
	var stored models.User
	if err := s.db.First(&stored, "id = ?", sc.Assistant.ID).Error; err != nil || stored.DeviceToken != "arn:device" {
		t.Fatalf("device token: %q %v", stored.DeviceToken, err)
	}
}
