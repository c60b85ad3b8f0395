package vdf

import (
	"testing"
)

// appRecord собирает одну запись приложения (без KeyValues-дерева).
func appRecord(id uint32, withBinHash bool, kv []byte) []byte {
	var b []byte
	b = appendU32(b, id)
	b = appendU32(b, uint32(len(kv))) // size — парсер его не интерпретирует
	b = appendU32(b, 2)               // state
	b = appendU32(b, 1700000000)      // last_update
	b = appendU64(b, 0)               // access_token
	b = append(b, make([]byte, 20)...) // sha1 текстового представления
	b = appendU32(b, 42)              // change_number
	if withBinHash {
		b = append(b, make([]byte, 20)...) // sha1 бинарного представления
	}
	return append(b, kv...)
}

// inlineCommonKV собирает дерево "appinfo" { "common" { "name" <name> } }
// с инлайн-ключами.
func inlineCommonKV(name string) []byte {
	var b []byte
	b = append(b, binNone)
	b = appendCStr(b, "appinfo")
	b = append(b, binNone)
	b = appendCStr(b, "common")
	b = append(b, binString)
	b = appendCStr(b, "name")
	b = appendCStr(b, name)
	b = append(b, binEnd)
	b = append(b, binEnd)
	b = append(b, binEnd)
	return b
}

// TestParseAppInfo_V28 проверяет разбор формата версии 28.
func TestParseAppInfo_V28(t *testing.T) {
	var data []byte
	data = appendU32(data, MagicV28)
	data = appendU32(data, 1) // universe
	data = append(data, appRecord(440, true, inlineCommonKV("Team Fortress 2"))...)
	data = append(data, appRecord(620, true, inlineCommonKV("Portal 2"))...)
	data = appendU32(data, 0) // терминальная запись

	file, err := ParseAppInfo(data)
	if err != nil {
		t.Fatalf("ParseAppInfo: %v", err)
	}

	if file.Version != MagicV28 {
		t.Errorf("Version: получено %#x", file.Version)
	}
	if file.Universe != 1 {
		t.Errorf("Universe: получено %d", file.Universe)
	}
	if len(file.Apps) != 2 {
		t.Fatalf("ожидалось 2 приложения, получено %d", len(file.Apps))
	}

	app := file.Apps[440]
	if app == nil {
		t.Fatal("приложение 440 не найдено")
	}
	if app.ChangeNumber != 42 {
		t.Errorf("ChangeNumber: получено %d", app.ChangeNumber)
	}
	name, err := app.KeyValues.String("appinfo", "common", "name")
	if err != nil || name != "Team Fortress 2" {
		t.Errorf("name: получено %q, err=%v", name, err)
	}
}

// TestParseAppInfo_V29 проверяет разбор версии 29 со string pool.
func TestParseAppInfo_V29(t *testing.T) {
	pool := []string{"appinfo", "common", "name"}

	// KeyValues с ключами-индексами в пул.
	var kv []byte
	kv = append(kv, binNone)
	kv = appendU32(kv, 0) // "appinfo"
	kv = append(kv, binNone)
	kv = appendU32(kv, 1) // "common"
	kv = append(kv, binString)
	kv = appendU32(kv, 2) // "name"
	kv = appendCStr(kv, "Half-Life 2")
	kv = append(kv, binEnd)
	kv = append(kv, binEnd)
	kv = append(kv, binEnd)

	apps := appRecord(220, true, kv)
	apps = appendU32(apps, 0)

	// Заголовок: magic + universe + u64 смещение таблицы строк
	// от начала файла.
	headerSize := 4 + 4 + 8
	poolOffset := headerSize + len(apps)

	var data []byte
	data = appendU32(data, MagicV29)
	data = appendU32(data, 1)
	data = appendU64(data, uint64(poolOffset))
	data = append(data, apps...)

	data = appendU32(data, uint32(len(pool)))
	for _, s := range pool {
		data = appendCStr(data, s)
	}

	file, err := ParseAppInfo(data)
	if err != nil {
		t.Fatalf("ParseAppInfo: %v", err)
	}
	if len(file.Apps) != 1 {
		t.Fatalf("ожидалось 1 приложение, получено %d", len(file.Apps))
	}

	name, err := file.Apps[220].KeyValues.String("appinfo", "common", "name")
	if err != nil || name != "Half-Life 2" {
		t.Errorf("name: получено %q, err=%v", name, err)
	}
}

// TestParseAppInfo_V27 проверяет, что в версии 27 второй SHA-1
// отсутствует.
func TestParseAppInfo_V27(t *testing.T) {
	var data []byte
	data = appendU32(data, MagicV27)
	data = appendU32(data, 1)
	data = append(data, appRecord(70, false, inlineCommonKV("Half-Life"))...)
	data = appendU32(data, 0)

	file, err := ParseAppInfo(data)
	if err != nil {
		t.Fatalf("ParseAppInfo: %v", err)
	}

	name, err := file.Apps[70].KeyValues.String("appinfo", "common", "name")
	if err != nil || name != "Half-Life" {
		t.Errorf("name: получено %q, err=%v", name, err)
	}
}

// TestParseAppInfo_Errors проверяет повреждённые входы.
func TestParseAppInfo_Errors(t *testing.T) {
	// Неизвестное магическое число.
	var unknown []byte
	unknown = appendU32(unknown, 0x07_56_44_99)
	unknown = appendU32(unknown, 1)
	if _, err := ParseAppInfo(unknown); err == nil {
		t.Error("неизвестное магическое число: ожидалась ошибка")
	}

	// Обрыв заголовка.
	if _, err := ParseAppInfo([]byte{0x27, 0x44}); err == nil {
		t.Error("обрыв заголовка: ожидалась ошибка")
	}

	// Смещение таблицы строк за пределами файла.
	var badOffset []byte
	badOffset = appendU32(badOffset, MagicV29)
	badOffset = appendU32(badOffset, 1)
	badOffset = appendU64(badOffset, 1<<40)
	if _, err := ParseAppInfo(badOffset); err == nil {
		t.Error("смещение вне файла: ожидалась ошибка")
	}

	// Обрыв записи приложения.
	var truncated []byte
	truncated = appendU32(truncated, MagicV28)
	truncated = appendU32(truncated, 1)
	truncated = appendU32(truncated, 440)
	truncated = appendU32(truncated, 10)
	if _, err := ParseAppInfo(truncated); err == nil {
		t.Error("обрыв записи: ожидалась ошибка")
	}
}
