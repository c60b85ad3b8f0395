package settings

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore_RoundTrip проверяет, что Set+Commit переживают
// перезагрузку хранилища (сценарий перезапуска супервизора).
func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New(dir, testLogger())
	s.Read()

	s.Set(KeyPort, 8080)
	s.Set(KeyAcceptedWarning, true)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Свежее хранилище читает то же состояние с диска.
	reloaded := New(dir, testLogger())
	reloaded.Read()

	if got := reloaded.GetInt(KeyPort, 5158); got != 8080 {
		t.Errorf("PORT после перезагрузки: получено %d", got)
	}
	if !reloaded.GetBool(KeyAcceptedWarning, false) {
		t.Error("ACCEPTED_WARNING после перезагрузки: ожидалось true")
	}
}

// TestStore_Defaults проверяет значения по умолчанию при отсутствии
// и порче файла.
func TestStore_Defaults(t *testing.T) {
	dir := t.TempDir()

	// Файла нет — дефолты, без ошибок.
	s := New(dir, testLogger())
	s.Read()
	if got := s.GetInt(KeyPort, 5158); got != 5158 {
		t.Errorf("дефолт PORT: получено %d", got)
	}
	if s.GetBool(KeyAcceptedWarning, false) {
		t.Error("дефолт ACCEPTED_WARNING: ожидалось false")
	}
	if s.Has(KeyPort) {
		t.Error("пустое хранилище не должно содержать ключей")
	}

	// Повреждённый файл — тоже дефолты.
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{повреждено"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	corrupt := New(dir, testLogger())
	corrupt.Read()
	if got := corrupt.GetInt(KeyPort, 5158); got != 5158 {
		t.Errorf("дефолт после порчи: получено %d", got)
	}
}

// TestStore_CommitCreatesDir проверяет создание каталога настроек.
func TestStore_CommitCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "settings")

	s := New(dir, testLogger())
	s.Read()
	s.Set(KeyPort, 6000)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "settings.json")); err != nil {
		t.Errorf("файл настроек не создан: %v", err)
	}
}

// TestStore_TypeSafety проверяет чтение значений неожиданных типов.
func TestStore_TypeSafety(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"),
		[]byte(`{"PORT": "не число", "ACCEPTED_WARNING": 1}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(dir, testLogger())
	s.Read()

	if got := s.GetInt(KeyPort, 5158); got != 5158 {
		t.Errorf("строковый PORT должен давать дефолт, получено %d", got)
	}
	if s.GetBool(KeyAcceptedWarning, false) {
		t.Error("числовой ACCEPTED_WARNING должен давать дефолт false")
	}
}
