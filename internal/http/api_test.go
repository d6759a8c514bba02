package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fakemyrun/internal/repository/sqlite"
	"fakemyrun/internal/service"
	"fakemyrun/internal/storage"
)

type memoryStorage struct {
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) PutDocument(_ context.Context, _, key, _ string, body []byte) (string, error) {
	m.objects[key] = append([]byte(nil), body...)
	return "s3://test/" + key, nil
}

func (m *memoryStorage) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	now := time.Now().UTC()
	for key, body := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(body)), LastModified: &now})
	}
	return infos, nil
}

type testEnv struct {
	router  *gin.Engine
	storage *memoryStorage
}

func newTestEnv(t *testing.T, delivery string, withArchive bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	routeRepo := sqlite.NewRouteRepository(db)
	statusRepo := sqlite.NewStatusRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, routeRepo.Init(ctx))
	require.NoError(t, statusRepo.Init(ctx))

	env := &testEnv{}
	var store storage.Service
	bucket := ""
	if withArchive {
		env.storage = newMemoryStorage()
		store = env.storage
		bucket = "test-bucket"
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	handler := NewHandler(
		service.NewAuthService(userRepo, "test-secret", time.Hour, bcrypt.MinCost),
		service.NewRouteService(routeRepo),
		service.NewStatusService(statusRepo),
		store,
		bucket,
		"gpx-archive",
		delivery,
		logger,
	)

	router := gin.New()
	handler.RegisterRoutes(router)
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func registerUser(t *testing.T, env *testEnv, email, username string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"username": username,
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func saveRouteBody(name string) gin.H {
	return gin.H{
		"coordinates": [][]float64{{40.7128, -74.0060}, {40.7589, -73.9851}},
		"runDetails": gin.H{
			"route_name": name,
			"distance":   5.0,
			"duration":   1800,
			"pace":       "6:00",
			"calories":   350,
			"name":       "Morning Run",
			"date":       "2026-01-15",
		},
	}
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	rec := env.do(t, http.MethodGet, "/api/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", decodeJSON(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    "a@x.com",
		"username": "a",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, user["id"])
	assert.Equal(t, "a@x.com", user["email"])

	// Same email, different case: rejected.
	rec = env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    "A@X.com",
		"username": "b",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already registered")

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "a@x.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeJSON(t, rec)["access_token"].(string)
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "a@x.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", decodeJSON(t, rec)["username"])

	rec = env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = env.do(t, http.MethodGet, "/api/auth/me", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	rec := env.do(t, http.MethodGet, "/api/routes", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/routes", "", saveRouteBody("Loop"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaveListOverwriteFlow(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)
	token := registerUser(t, env, "a@x.com", "a")

	// Two plain saves of the same name create two distinct routes.
	rec := env.do(t, http.MethodPost, "/api/routes", token, saveRouteBody("Loop"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	firstID, _ := decodeJSON(t, rec)["id"].(string)
	require.NotEmpty(t, firstID)

	rec = env.do(t, http.MethodPost, "/api/routes", token, saveRouteBody("Loop"))
	require.Equal(t, http.StatusOK, rec.Code)
	secondID, _ := decodeJSON(t, rec)["id"].(string)
	assert.NotEqual(t, firstID, secondID)

	rec = env.do(t, http.MethodGet, "/api/routes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)

	// Overwrite keeps the count at two and reuses an existing id.
	body := saveRouteBody("Loop")
	body["runDetails"].(gin.H)["distance"] = 9.9
	rec = env.do(t, http.MethodPost, "/api/routes?overwrite=true", token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	overwrittenID, _ := decodeJSON(t, rec)["id"].(string)
	assert.Contains(t, []string{firstID, secondID}, overwrittenID)

	rec = env.do(t, http.MethodGet, "/api/routes", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)

	var updated int
	for _, r := range listed {
		details := r["run_details"].(map[string]any)
		if details["distance"] == 9.9 {
			updated++
		}
	}
	assert.Equal(t, 1, updated, "exactly one record's payload is refreshed")
}

func TestSaveRejectsShortRoutes(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)
	token := registerUser(t, env, "a@x.com", "a")

	body := saveRouteBody("Loop")
	body["coordinates"] = [][]float64{{40.7128, -74.0060}}
	rec := env.do(t, http.MethodPost, "/api/routes", token, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 2 points")
}

func TestGetDeleteOwnership(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)
	tokenA := registerUser(t, env, "a@x.com", "a")
	tokenB := registerUser(t, env, "b@x.com", "b")

	rec := env.do(t, http.MethodPost, "/api/routes", tokenA, saveRouteBody("Loop"))
	require.Equal(t, http.StatusOK, rec.Code)
	routeID, _ := decodeJSON(t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/routes/"+routeID, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Another user gets the same 404 as for a nonexistent id.
	rec = env.do(t, http.MethodGet, "/api/routes/"+routeID, tokenB, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	notOwned := rec.Body.String()

	rec = env.do(t, http.MethodGet, "/api/routes/nonexistent", tokenA, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, notOwned, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/routes/"+routeID, tokenB, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/routes/"+routeID, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, routeID, decodeJSON(t, rec)["deleted"])

	rec = env.do(t, http.MethodGet, "/api/routes/"+routeID, tokenA, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func generateBody(points [][]float64) gin.H {
	return gin.H{
		"route": points,
		"runDetails": gin.H{
			"name":          "Test Run",
			"date":          "2026-05-29",
			"startTime":     "08:00",
			"description":   "Test run",
			"avgPace":       6.0,
			"distance":      5.2,
			"duration":      1800,
			"elevationGain": 150,
			"activityType":  "run",
		},
	}
}

func TestGenerateGPXAttachment(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	points := [][]float64{{37.7749, -122.4194}, {37.7849, -122.4094}, {37.7949, -122.3994}}
	rec := env.do(t, http.MethodPost, "/api/generate-gpx", "", generateBody(points))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, gpxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=Test_Run_2026-05-29.gpx")

	body := rec.Body.String()
	assert.Contains(t, body, `creator="FakeMyRun"`)
	assert.Equal(t, 3, bytes.Count(rec.Body.Bytes(), []byte("<trkpt")))
	assert.Contains(t, body, "<ele>")
	assert.Contains(t, body, "<time>")
}

func TestGenerateGPXJSONEnvelope(t *testing.T) {
	env := newTestEnv(t, DeliveryJSON, false)

	points := [][]float64{{37.7749, -122.4194}, {37.7849, -122.4094}}
	rec := env.do(t, http.MethodPost, "/api/generate-gpx", "", generateBody(points))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "Test_Run_2026-05-29.gpx", body["filename"])
	gpxDoc, _ := body["gpx"].(string)
	assert.Contains(t, gpxDoc, "<trkpt")
}

func TestGenerateGPXTooFewPoints(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	for _, points := range [][][]float64{{}, {{37.7749, -122.4194}}} {
		rec := env.do(t, http.MethodPost, "/api/generate-gpx", "", generateBody(points))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "at least 2 points")
	}
}

func TestGenerateGPXArchives(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, true)
	token := registerUser(t, env, "a@x.com", "a")

	points := [][]float64{{37.7749, -122.4194}, {37.7849, -122.4094}}
	rec := env.do(t, http.MethodPost, "/api/generate-gpx", "", generateBody(points))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.storage.objects, 1)
	_, ok := env.storage.objects["gpx-archive/Test_Run_2026-05-29.gpx"]
	assert.True(t, ok)

	rec = env.do(t, http.MethodGet, "/api/gpx/archive", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var archived []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &archived))
	require.Len(t, archived, 1)
	assert.Equal(t, "gpx-archive/Test_Run_2026-05-29.gpx", archived[0]["key"])
}

func TestListArchiveUnconfigured(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)
	token := registerUser(t, env, "a@x.com", "a")

	rec := env.do(t, http.MethodGet, "/api/gpx/archive", token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage service not configured")
}

func (e *testEnv) uploadFile(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload-gpx", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadGPX(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	doc := `<?xml version="1.0"?>
<gpx version="1.1" creator="other">
  <metadata><name>Imported Loop</name></metadata>
  <trk><trkseg>
    <trkpt lat="40.7128" lon="-74.006"></trkpt>
    <trkpt lat="40.7589" lon="-73.9851"></trkpt>
  </trkseg></trk>
</gpx>`

	rec := env.uploadFile(t, "morning.gpx", []byte(doc))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "Imported Loop", body["name"])
	coords, ok := body["coordinates"].([]any)
	require.True(t, ok)
	assert.Len(t, coords, 2)
}

func TestUploadGPXRejectsWrongExtension(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	for _, name := range []string{"route.txt", "route.GPX", "route.gpx.zip"} {
		rec := env.uploadFile(t, name, []byte("irrelevant"))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), ".gpx extension")
	}
}

func TestUploadGPXMalformedDocument(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	rec := env.uploadFile(t, "broken.gpx", []byte("<gpx><trk></gpx"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no track points")
}

func TestStatusChecks(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	rec := env.do(t, http.MethodPost, "/api/status", "", gin.H{"client_name": "test_client"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON(t, rec)
	assert.Equal(t, "test_client", created["client_name"])
	assert.NotEmpty(t, created["id"])

	rec = env.do(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t, DeliveryAttachment, false)

	// Register, login, save "Loop" twice without overwrite, then overwrite.
	token := registerUser(t, env, "a@x.com", "a")

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "a@x.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/api/routes", token, saveRouteBody("Loop"))
		require.Equal(t, http.StatusOK, rec.Code)
		id, _ := decodeJSON(t, rec)["id"].(string)
		ids[id] = true
	}
	require.Len(t, ids, 2, "two saves without overwrite create two routes")

	rec = env.do(t, http.MethodPost, "/api/routes?overwrite=true", token, saveRouteBody("Loop"))
	require.Equal(t, http.StatusOK, rec.Code)
	overwritten, _ := decodeJSON(t, rec)["id"].(string)
	assert.True(t, ids[overwritten], "overwrite reuses an existing id")

	rec = env.do(t, http.MethodGet, "/api/routes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
}
