package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/bigkaa/screenshot-server/internal/api/handlers"
	"github.com/bigkaa/screenshot-server/internal/screenshots"
	"github.com/bigkaa/screenshot-server/internal/steam"
	"github.com/bigkaa/screenshot-server/internal/thumbs"
	"github.com/bigkaa/screenshot-server/internal/vdf"
)

const fixtureID3 = uint64(39734273)

// envelope — конверт ответа публичного API в тестах.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAPIServer поднимает httptest-сервер публичного API поверх
// временного корня Steam с одним пользователем и приложением 440.
func newAPIServer(t *testing.T) (*httptest.Server, *steam.Paths) {
	t.Helper()
	root := t.TempDir()

	// Манифест пользователей.
	loginUsers := `"users"
{
	"76561198000000001"
	{
		"AccountName"		"alice"
		"PersonaName"		"Alice"
		"Timestamp"		"1700000200"
	}
}
`
	mustWrite(t, filepath.Join(root, "config", "loginusers.vdf"), []byte(loginUsers))

	// Пустой каталог приложений: только заголовок и терминальная
	// запись. Резолв тогда идёт через заглушки Unknown App.
	var appinfo []byte
	appinfo = binary.LittleEndian.AppendUint32(appinfo, vdf.MagicV28)
	appinfo = binary.LittleEndian.AppendUint32(appinfo, 1)
	appinfo = binary.LittleEndian.AppendUint32(appinfo, 0)
	mustWrite(t, filepath.Join(root, "appcache", "appinfo.vdf"), appinfo)

	// Скриншоты приложения 440: C.png с готовой миниатюрой Steam,
	// A.jpg и B.jpg без.
	shotsDir := filepath.Join(root, "userdata", strconv.FormatUint(fixtureID3, 10),
		"760", "remote", "440", "screenshots")
	mustWrite(t, filepath.Join(shotsDir, "A.jpg"), []byte("imgA"))
	mustWrite(t, filepath.Join(shotsDir, "B.jpg"), []byte("imgB"))
	mustWrite(t, filepath.Join(shotsDir, "C.png"), encodePNG(t))
	mustWrite(t, filepath.Join(shotsDir, "thumbnails", "C.jpg"), []byte("premade-thumb"))

	paths, err := steam.NewPaths(root)
	if err != nil {
		t.Fatalf("NewPaths: %v", err)
	}

	logger := testLogger()
	resolver := steam.NewResolver(paths, logger)
	if err := resolver.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	idx := screenshots.NewIndex(paths, logger)
	gen, err := thumbs.New(64, logger)
	if err != nil {
		t.Fatalf("thumbs.New: %v", err)
	}

	h := Handlers{
		Users:       handlers.NewUsersHandler(resolver),
		Screenshots: handlers.NewScreenshotsHandler(resolver, idx, gen),
		Health:      handlers.NewHealthHandler(paths.Root(), resolver),
	}
	srv := httptest.NewServer(NewRouter(h, []string{"*"}, logger))
	t.Cleanup(srv.Close)
	return srv, paths
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// encodePNG кодирует небольшое валидное PNG-изображение.
func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func getEnvelope(t *testing.T, url string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Get %s: %v", url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return resp.StatusCode, env
}

func userURL(srv *httptest.Server, suffix string) string {
	return srv.URL + "/api/users/" + strconv.FormatUint(fixtureID3, 10) + suffix
}

// TestAPI_ListUsers проверяет GET /api/users.
func TestAPI_ListUsers(t *testing.T) {
	srv, _ := newAPIServer(t)

	status, env := getEnvelope(t, srv.URL+"/api/users")
	if status != http.StatusOK || !env.OK {
		t.Fatalf("users: %d, env=%+v", status, env)
	}

	var users []struct {
		ID3         uint64 `json:"id3"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" || users[0].DisplayName != "Alice" {
		t.Errorf("users: %+v", users)
	}
	if users[0].ID3 != fixtureID3 {
		t.Errorf("id3: %d", users[0].ID3)
	}
}

// TestAPI_ListUserApps проверяет GET /api/users/{id3} и 404 для
// неизвестного пользователя.
func TestAPI_ListUserApps(t *testing.T) {
	srv, _ := newAPIServer(t)

	status, env := getEnvelope(t, userURL(srv, ""))
	if status != http.StatusOK || !env.OK {
		t.Fatalf("apps: %d, env=%+v", status, env)
	}

	var apps []struct {
		ID   uint32 `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data, &apps); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(apps) != 1 || apps[0].ID != 440 || apps[0].Name != "Unknown App 440" {
		t.Errorf("apps: %+v", apps)
	}

	status, env = getEnvelope(t, srv.URL+"/api/users/12345")
	if status != http.StatusNotFound || env.OK || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("неизвестный пользователь: %d, env=%+v", status, env)
	}

	status, env = getEnvelope(t, srv.URL+"/api/users/abc")
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("нечисловой id3: %d, env=%+v", status, env)
	}
}

// TestAPI_ListScreenshots проверяет листинг с пагинацией.
func TestAPI_ListScreenshots(t *testing.T) {
	srv, _ := newAPIServer(t)

	status, env := getEnvelope(t, userURL(srv, "/440"))
	if status != http.StatusOK || !env.OK {
		t.Fatalf("листинг: %d, env=%+v", status, env)
	}

	var data struct {
		App struct {
			ID   uint32 `json:"id"`
			Name string `json:"name"`
		} `json:"app"`
		Screenshots []string `json:"screenshots"`
		Pagination  struct {
			Total   int `json:"total"`
			Page    int `json:"page"`
			PerPage int `json:"per_page"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if data.App.Name != "Unknown App 440" {
		t.Errorf("app: %+v", data.App)
	}
	// Имена по убыванию: C, B, A.
	want := []string{"C.png", "B.jpg", "A.jpg"}
	if len(data.Screenshots) != 3 {
		t.Fatalf("screenshots: %v", data.Screenshots)
	}
	for i, n := range want {
		if data.Screenshots[i] != n {
			t.Errorf("порядок: %v", data.Screenshots)
			break
		}
	}
	if data.Pagination.Total != 3 || data.Pagination.Page != 0 || data.Pagination.PerPage != 10 {
		t.Errorf("pagination: %+v", data.Pagination)
	}

	// Недопустимый размер страницы.
	status, env = getEnvelope(t, userURL(srv, "/440?per_page=7"))
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("per_page=7: %d, env=%+v", status, env)
	}

	// Пустой каталог приложения — не ошибка.
	status, env = getEnvelope(t, userURL(srv, "/999?page=2&per_page=20"))
	if status != http.StatusOK {
		t.Fatalf("пустое приложение: %d", status)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if data.Pagination.Total != 0 || len(data.Screenshots) != 0 {
		t.Errorf("пустое приложение: %+v", data)
	}
}

// TestAPI_GetScreenshot проверяет отдачу файла и защиту от обхода
// каталогов.
func TestAPI_GetScreenshot(t *testing.T) {
	srv, _ := newAPIServer(t)

	resp, err := http.Get(userURL(srv, "/440/B.jpg"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("файл: %d", resp.StatusCode)
	}
	if string(body) != "imgB" {
		t.Errorf("тело: %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type: %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `inline; filename="B.jpg"` {
		t.Errorf("Content-Disposition: %q", cd)
	}

	// Попытка выйти из каталога скриншотов.
	status, env := getEnvelope(t, userURL(srv, "/440/..%2F..%2Fetc%2Fpasswd"))
	if status != http.StatusForbidden || env.Error == nil || env.Error.Code != "FORBIDDEN" {
		t.Errorf("traversal: %d, env=%+v", status, env)
	}

	// Несуществующий файл.
	status, env = getEnvelope(t, userURL(srv, "/440/missing.jpg"))
	if status != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("missing: %d, env=%+v", status, env)
	}
}

// TestAPI_GetThumbnail проверяет оба пути миниатюр: готовую Steam
// и генерацию на лету.
func TestAPI_GetThumbnail(t *testing.T) {
	srv, _ := newAPIServer(t)

	// Готовая миниатюра: thumbnails/C.jpg.
	resp, err := http.Get(userURL(srv, "/440/t/C.png"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "premade-thumb" {
		t.Errorf("готовая миниатюра: %d, %q", resp.StatusCode, body)
	}

	// Для C.png есть готовая, а для A.jpg нет — но A.jpg не валидное
	// изображение, генерация должна дать 500.
	resp, err = http.Get(userURL(srv, "/440/t/A.jpg"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("битое изображение: %d", resp.StatusCode)
	}
}

// TestAPI_ThumbnailGenerated проверяет генерацию миниатюры из
// валидного изображения без готовой миниатюры Steam.
func TestAPI_ThumbnailGenerated(t *testing.T) {
	srv, paths := newAPIServer(t)

	// D.png — валидное изображение без готовой миниатюры.
	mustWrite(t, filepath.Join(paths.ScreenshotsDir(fixtureID3, 440), "D.png"), encodePNG(t))

	resp, err := http.Get(userURL(srv, "/440/t/D.png"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("генерация: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type: %q", ct)
	}
	// JPEG начинается с маркера SOI.
	if len(body) < 2 || body[0] != 0xFF || body[1] != 0xD8 {
		t.Errorf("тело не похоже на JPEG: % x", body[:min(8, len(body))])
	}
}

// TestAPI_Health проверяет health endpoints.
func TestAPI_Health(t *testing.T) {
	srv, _ := newAPIServer(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("Get %s: %v", path, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: %d", path, resp.StatusCode)
		}
	}
}

// TestAPI_CORS проверяет, что preflight-запрос получает CORS-заголовки.
func TestAPI_CORS(t *testing.T) {
	srv, _ := newAPIServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/users", nil)
	req.Header.Set("Origin", "https://steamloopback.host")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: %q", got)
	}
}
