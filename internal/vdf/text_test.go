package vdf

import (
	"errors"
	"testing"
)

// sampleLoginUsers — усечённый loginusers.vdf.
const sampleLoginUsers = `"users"
{
	"76561198000000001"
	{
		"AccountName"		"alice"
		"PersonaName"		"Alice"
		"RememberPassword"		"1"
		"Timestamp"		"1700000200"
	}
	// закомментированный пользователь не должен попасть в дерево
	"76561198000000003"
	{
		"AccountName"		"bob"
		"PersonaName"		"Bob \"the\" Builder"
		"Timestamp"		"1700000100"
	}
}
`

// TestParseText_LoginUsers проверяет разбор реального формата loginusers.vdf.
func TestParseText_LoginUsers(t *testing.T) {
	root, err := ParseText(sampleLoginUsers)
	if err != nil {
		t.Fatalf("ParseText: неожиданная ошибка: %v", err)
	}

	users, err := root.Child("users")
	if err != nil {
		t.Fatalf("Child(users): %v", err)
	}
	if users.Len() != 2 {
		t.Fatalf("ожидалось 2 пользователя, получено %d", users.Len())
	}

	name, err := root.String("users", "76561198000000001", "AccountName")
	if err != nil {
		t.Fatalf("String(AccountName): %v", err)
	}
	if name != "alice" {
		t.Errorf("AccountName: ожидалось %q, получено %q", "alice", name)
	}

	// Экранированные кавычки внутри значения.
	persona, err := root.String("users", "76561198000000003", "PersonaName")
	if err != nil {
		t.Fatalf("String(PersonaName): %v", err)
	}
	if persona != `Bob "the" Builder` {
		t.Errorf("PersonaName: получено %q", persona)
	}

	// Числовое значение хранится строкой и конвертируется в Uint64.
	ts, err := root.Uint64("users", "76561198000000001", "Timestamp")
	if err != nil {
		t.Fatalf("Uint64(Timestamp): %v", err)
	}
	if ts != 1700000200 {
		t.Errorf("Timestamp: ожидалось 1700000200, получено %d", ts)
	}
}

// TestParseText_DuplicateKeys проверяет политику "последний побеждает".
func TestParseText_DuplicateKeys(t *testing.T) {
	root, err := ParseText(`"root"
{
	"key"	"first"
	"other"	"x"
	"key"	"second"
}
`)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	got, err := root.String("root", "key")
	if err != nil {
		t.Fatalf("String(key): %v", err)
	}
	if got != "second" {
		t.Errorf("при дубликате ключа ожидалось последнее значение, получено %q", got)
	}

	// Позиция ключа в порядке обхода остаётся первоначальной.
	node, _ := root.Child("root")
	keys := node.Keys()
	if len(keys) != 2 || keys[0] != "key" || keys[1] != "other" {
		t.Errorf("неожиданный порядок ключей: %v", keys)
	}
}

// TestParseText_Malformed проверяет, что повреждённый вход даёт
// ParseError, а не панику.
func TestParseText_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"незакрытая скобка", `"root" { "k" "v"`},
		{"лишняя закрывающая скобка", `"root" { } }`},
		{"значение без ключа", `{ "v" }`},
		{"незакрытая кавычка", `"root" { "k" "v`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseText(tt.input)
			if err == nil {
				t.Fatal("ожидалась ошибка разбора")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("ожидался *ParseError, получено %T: %v", err, err)
			}
		})
	}
}

// TestParseText_Escapes проверяет escape-последовательности.
func TestParseText_Escapes(t *testing.T) {
	root, err := ParseText(`"root"
{
	"path"	"C:\\Games\\Steam"
	"multiline"	"a\nb\tc"
}
`)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	path, _ := root.String("root", "path")
	if path != `C:\Games\Steam` {
		t.Errorf("path: получено %q", path)
	}
	ml, _ := root.String("root", "multiline")
	if ml != "a\nb\tc" {
		t.Errorf("multiline: получено %q", ml)
	}
}

// TestNode_TypedAccess проверяет ошибки типизированного доступа.
func TestNode_TypedAccess(t *testing.T) {
	root, err := ParseText(`"root" { "str" "value" "nested" { "k" "v" } }`)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	if _, err := root.String("root", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("отсутствующий ключ: ожидался ErrNotFound, получено %v", err)
	}
	if _, err := root.Child("root", "str"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Child над строкой: ожидался ErrTypeMismatch, получено %v", err)
	}
	if _, err := root.Uint64("root", "str"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Uint64 над нечисловой строкой: ожидался ErrTypeMismatch, получено %v", err)
	}
	if _, err := root.Get("root", "str", "deeper"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("путь через не-узел: ожидался ErrTypeMismatch, получено %v", err)
	}
}
