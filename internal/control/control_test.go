package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/screenshot-server/internal/config"
	"github.com/bigkaa/screenshot-server/internal/settings"
	"github.com/bigkaa/screenshot-server/internal/supervisor"
)

// envelope — конверт ответа control API в тестах.
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

// newControlServer поднимает httptest-сервер control API поверх
// супервизора с фиктивным бэкендом.
func newControlServer(t *testing.T) *httptest.Server {
	t.Helper()

	script := filepath.Join(t.TempDir(), "fake-server")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &config.SupervisorConfig{
		BackendBin:   script,
		ChildHost:    "127.0.0.1",
		SteamRoot:    t.TempDir(),
		StartTimeout: 3 * time.Second,
		StopTimeout:  3 * time.Second,
	}

	store := settings.New(t.TempDir(), testLogger())
	store.Read()

	sup := supervisor.NewWithHealthCheck(cfg, store, testLogger(),
		func(context.Context, int) error { return nil })
	t.Cleanup(sup.Close)

	srv := httptest.NewServer(NewRouter(NewHandler(sup, testLogger()), testLogger()))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON выполняет запрос и разбирает конверт ответа.
func doJSON(t *testing.T, method, url string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return resp.StatusCode, env
}

// TestControl_StatusDefaults проверяет статус свежего супервизора.
func TestControl_StatusDefaults(t *testing.T) {
	srv := newControlServer(t)

	status, env := doJSON(t, http.MethodGet, srv.URL+"/api/status", nil)
	if status != http.StatusOK || !env.OK {
		t.Fatalf("статус: %d, env=%+v", status, env)
	}

	var data struct {
		Running         bool    `json:"server_running"`
		IPAddress       string  `json:"ip_address"`
		Port            int     `json:"port"`
		AcceptedWarning bool    `json:"accepted_warning"`
		Error           *string `json:"error"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if data.Running || data.AcceptedWarning || data.Error != nil {
		t.Errorf("дефолтный статус: %+v", data)
	}
	if data.Port != config.DefaultPort {
		t.Errorf("порт по умолчанию: %d", data.Port)
	}
}

// TestControl_WarningGate проверяет отказ запуска до принятия
// предупреждения и успешный цикл после.
func TestControl_WarningGate(t *testing.T) {
	srv := newControlServer(t)

	// Запуск до предупреждения — 409 с кодом, без поля ошибки в статусе.
	status, env := doJSON(t, http.MethodPost, srv.URL+"/api/server", map[string]any{"enable": true})
	if status != http.StatusConflict || env.OK {
		t.Fatalf("ожидался 409: %d, env=%+v", status, env)
	}
	if env.Error == nil || env.Error.Code != "WARNING_NOT_ACCEPTED" {
		t.Fatalf("код ошибки: %+v", env.Error)
	}

	_, errEnv := doJSON(t, http.MethodGet, srv.URL+"/api/error", nil)
	var errData struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(errEnv.Data, &errData); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if errData.Error != nil {
		t.Errorf("штатный отказ не должен заполнять ошибку: %v", *errData.Error)
	}

	// Принимаем предупреждение и запускаем.
	status, env = doJSON(t, http.MethodPost, srv.URL+"/api/settings/warning", nil)
	if status != http.StatusOK || !env.OK {
		t.Fatalf("warning: %d, env=%+v", status, env)
	}

	status, env = doJSON(t, http.MethodPost, srv.URL+"/api/server", map[string]any{"enable": true})
	if status != http.StatusOK || !env.OK {
		t.Fatalf("запуск: %d, env=%+v", status, env)
	}
	var running struct {
		Running bool `json:"running"`
	}
	if err := json.Unmarshal(env.Data, &running); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !running.Running {
		t.Error("после запуска ожидалось running=true")
	}

	// Принудительное убийство.
	status, env = doJSON(t, http.MethodPost, srv.URL+"/api/server/kill", nil)
	if status != http.StatusOK || !env.OK {
		t.Fatalf("kill: %d, env=%+v", status, env)
	}
}

// TestControl_SetPort проверяет валидацию настроек порта через API.
func TestControl_SetPort(t *testing.T) {
	srv := newControlServer(t)

	status, env := doJSON(t, http.MethodPut, srv.URL+"/api/settings/port", map[string]any{"port": 8080})
	if status != http.StatusOK || !env.OK {
		t.Fatalf("SetPort: %d, env=%+v", status, env)
	}

	status, env = doJSON(t, http.MethodPut, srv.URL+"/api/settings/port", map[string]any{"port": 80})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_ARGUMENT" {
		t.Fatalf("порт вне диапазона: %d, env=%+v", status, env)
	}

	// Некорректное тело.
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/settings/port", bytes.NewReader([]byte("{битый json")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("битое тело: %d", resp.StatusCode)
	}
}
