// Пакет vdf — чтение Valve Data Format (KeyValues).
//
// Поддерживаются обе разновидности формата:
//   - текстовая (loginusers.vdf): кавычные ключи/значения, вложенные
//     фигурные скобки, комментарии //;
//   - бинарная (appinfo.vdf, shortcuts.vdf): типизированные значения,
//     NUL-терминированные строки, string pool в новых версиях appinfo.
//
// Дерево недетерминированной структуры скрыто за типизированным слоем
// доступа (Node): запрос значения по пути возвращает либо значение
// нужного типа, либо ErrNotFound/ErrTypeMismatch.
package vdf

import (
	"errors"
	"fmt"
	"strconv"
)

// Ошибки типизированного доступа к дереву.
var (
	// ErrNotFound — ключ отсутствует в дереве.
	ErrNotFound = errors.New("ключ не найден")
	// ErrTypeMismatch — значение есть, но другого типа.
	ErrTypeMismatch = errors.New("несоответствие типа значения")
)

// ParseError — ошибка разбора VDF-документа. Разбор никогда не
// паникует: любое повреждение входа приводит к ParseError.
type ParseError struct {
	// Offset — позиция во входных данных (байт для бинарного формата,
	// строка для текстового)
	Offset int
	// Msg — описание проблемы
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ошибка разбора VDF (позиция %d): %s", e.Offset, e.Msg)
}

// Kind — тип значения в дереве.
type Kind int

const (
	// KindNode — вложенный узел ключ-значение
	KindNode Kind = iota
	// KindString — UTF-8 строка (и текстовый формат, и бинарный)
	KindString
	// KindWideString — UTF-16 строка бинарного формата
	KindWideString
	// KindInt32 — 32-битное целое
	KindInt32
	// KindPointer — указатель (хранится как int32)
	KindPointer
	// KindColor — цвет (хранится как int32)
	KindColor
	// KindUint64 — беззнаковое 64-битное целое
	KindUint64
	// KindInt64 — знаковое 64-битное целое
	KindInt64
	// KindFloat32 — число с плавающей точкой
	KindFloat32
)

// Value — значение узла дерева. Заполнено только поле,
// соответствующее Kind.
type Value struct {
	Kind Kind
	Str  string
	I32  int32
	U64  uint64
	I64  int64
	F32  float32
	Node *Node
}

// Node — узел дерева ключ-значение. Порядок ключей сохраняется
// в порядке появления во входных данных (важно для упорядоченных
// списков вроде developers/publishers, которые Valve кодирует
// повторяющимися нумерованными ключами).
type Node struct {
	keys   []string
	values map[string]Value
}

// NewNode создаёт пустой узел.
func NewNode() *Node {
	return &Node{values: make(map[string]Value)}
}

// Set записывает значение ключа. При дубликате ключа побеждает
// последнее значение (last wins), позиция ключа в порядке обхода
// остаётся первоначальной.
func (n *Node) Set(key string, v Value) {
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = v
}

// Keys возвращает ключи узла в порядке появления.
func (n *Node) Keys() []string {
	result := make([]string, len(n.keys))
	copy(result, n.keys)
	return result
}

// Len возвращает количество ключей узла.
func (n *Node) Len() int {
	return len(n.keys)
}

// Get возвращает значение по пути из одного или нескольких ключей.
// Все ключи пути, кроме последнего, обязаны быть вложенными узлами.
func (n *Node) Get(path ...string) (Value, error) {
	if len(path) == 0 {
		return Value{}, fmt.Errorf("пустой путь: %w", ErrNotFound)
	}

	current := n
	for i, key := range path {
		v, ok := current.values[key]
		if !ok {
			return Value{}, fmt.Errorf("ключ %q: %w", key, ErrNotFound)
		}
		if i == len(path)-1 {
			return v, nil
		}
		if v.Kind != KindNode {
			return Value{}, fmt.Errorf("ключ %q не является узлом: %w", key, ErrTypeMismatch)
		}
		current = v.Node
	}

	// Недостижимо: цикл всегда возвращает на последнем ключе.
	return Value{}, ErrNotFound
}

// Child возвращает вложенный узел по пути.
func (n *Node) Child(path ...string) (*Node, error) {
	v, err := n.Get(path...)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindNode {
		return nil, fmt.Errorf("ключ %q: %w", path[len(path)-1], ErrTypeMismatch)
	}
	return v.Node, nil
}

// String возвращает строковое значение по пути.
// WideString приводится к обычной строке.
func (n *Node) String(path ...string) (string, error) {
	v, err := n.Get(path...)
	if err != nil {
		return "", err
	}
	switch v.Kind {
	case KindString, KindWideString:
		return v.Str, nil
	default:
		return "", fmt.Errorf("ключ %q: ожидалась строка: %w", path[len(path)-1], ErrTypeMismatch)
	}
}

// Int32 возвращает 32-битное целое по пути.
func (n *Node) Int32(path ...string) (int32, error) {
	v, err := n.Get(path...)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindInt32, KindPointer, KindColor:
		return v.I32, nil
	default:
		return 0, fmt.Errorf("ключ %q: ожидалось int32: %w", path[len(path)-1], ErrTypeMismatch)
	}
}

// Uint32 возвращает значение int32-ключа, интерпретированное как
// беззнаковое (идентификаторы приложений в shortcuts.vdf).
func (n *Node) Uint32(path ...string) (uint32, error) {
	v, err := n.Int32(path...)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Uint64 возвращает 64-битное беззнаковое значение по пути.
// В текстовом формате число хранится строкой и конвертируется.
func (n *Node) Uint64(path ...string) (uint64, error) {
	v, err := n.Get(path...)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindUint64:
		return v.U64, nil
	case KindInt64:
		return uint64(v.I64), nil
	case KindInt32:
		return uint64(v.I32), nil
	case KindString:
		parsed, perr := strconv.ParseUint(v.Str, 10, 64)
		if perr != nil {
			return 0, fmt.Errorf("ключ %q: строка %q не является числом: %w",
				path[len(path)-1], v.Str, ErrTypeMismatch)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("ключ %q: ожидалось uint64: %w", path[len(path)-1], ErrTypeMismatch)
	}
}
