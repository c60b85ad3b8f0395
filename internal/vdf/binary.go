// binary.go — разбор бинарного VDF (binary KeyValues).
//
// Каждый элемент кодируется байтом типа, ключом и значением.
// Ключ — NUL-терминированная UTF-8 строка либо, при наличии string
// pool (appinfo.vdf версии 29), 32-битный индекс в пул. Узел
// закрывается байтом 0x08 (0x0B в альтернативном формате).
package vdf

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Байты типов бинарного формата.
const (
	binNone       = 0x00
	binString     = 0x01
	binInt32      = 0x02
	binFloat32    = 0x03
	binPointer    = 0x04
	binWideString = 0x05
	binColor      = 0x06
	binUint64     = 0x07
	binEnd        = 0x08
	binInt64      = 0x0A
	binEndAlt     = 0x0B
)

// BinaryOptions — параметры разбора бинарного KeyValues.
type BinaryOptions struct {
	// StringPool — пул строк для ключей (appinfo.vdf версии 29).
	// Пустой пул означает, что ключи хранятся инлайн.
	StringPool []string
	// AltFormat — использовать альтернативный байт конца узла (0x0B).
	AltFormat bool
}

// ParseBinary разбирает бинарный KeyValues-узел с начала данных.
// Возвращает дерево и количество прочитанных байт.
func ParseBinary(data []byte, opts BinaryOptions) (*Node, int, error) {
	r := &binReader{data: data}
	node, err := parseBinaryNode(r, &opts)
	if err != nil {
		return nil, r.pos, err
	}
	return node, r.pos, nil
}

// parseBinaryNode читает пары тип/ключ/значение до байта конца узла.
func parseBinaryNode(r *binReader, opts *BinaryOptions) (*Node, error) {
	endByte := byte(binEnd)
	if opts.AltFormat {
		endByte = binEndAlt
	}

	node := NewNode()
	for {
		t, err := r.byte()
		if err != nil {
			return nil, err
		}
		if t == endByte {
			return node, nil
		}

		key, err := r.key(opts)
		if err != nil {
			return nil, err
		}

		var v Value
		switch t {
		case binNone:
			child, cerr := parseBinaryNode(r, opts)
			if cerr != nil {
				return nil, cerr
			}
			v = Value{Kind: KindNode, Node: child}
		case binString:
			s, serr := r.utf8()
			if serr != nil {
				return nil, serr
			}
			v = Value{Kind: KindString, Str: s}
		case binWideString:
			s, serr := r.utf16()
			if serr != nil {
				return nil, serr
			}
			v = Value{Kind: KindWideString, Str: s}
		case binInt32, binPointer, binColor:
			n, nerr := r.uint32()
			if nerr != nil {
				return nil, nerr
			}
			kind := KindInt32
			if t == binPointer {
				kind = KindPointer
			} else if t == binColor {
				kind = KindColor
			}
			v = Value{Kind: kind, I32: int32(n)}
		case binUint64:
			n, nerr := r.uint64()
			if nerr != nil {
				return nil, nerr
			}
			v = Value{Kind: KindUint64, U64: n}
		case binInt64:
			n, nerr := r.uint64()
			if nerr != nil {
				return nil, nerr
			}
			v = Value{Kind: KindInt64, I64: int64(n)}
		case binFloat32:
			n, nerr := r.uint32()
			if nerr != nil {
				return nil, nerr
			}
			v = Value{Kind: KindFloat32, F32: math.Float32frombits(n)}
		default:
			return nil, &ParseError{Offset: r.pos - 1, Msg: fmt.Sprintf("неизвестный байт типа %#x", t)}
		}

		node.Set(key, v)
	}
}

// binReader — курсор по бинарным данным. Все методы возвращают
// ParseError при выходе за пределы входа.
type binReader struct {
	data []byte
	pos  int
}

func (r *binReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, &ParseError{Offset: r.pos, Msg: "неожиданный конец данных"}
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *binReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, &ParseError{Offset: r.pos, Msg: fmt.Sprintf("неожиданный конец данных: нужно %d байт", n)}
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *binReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *binReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// utf8 читает NUL-терминированную UTF-8 строку.
func (r *binReader) utf8() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++ // NUL
			return s, nil
		}
		r.pos++
	}
	return "", &ParseError{Offset: start, Msg: "строка без NUL-терминатора"}
}

// utf16 читает строку UTF-16 до двойного NUL. BOM определяет порядок
// байт, без BOM подразумевается big-endian (как в исходном формате).
func (r *binReader) utf16() (string, error) {
	start := r.pos
	end := -1
	for i := r.pos; i+1 < len(r.data); i += 2 {
		if r.data[i] == 0 && r.data[i+1] == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return "", &ParseError{Offset: start, Msg: "широкая строка без терминатора"}
	}

	buf := r.data[start:end]
	r.pos = end + 2

	bigEndian := true
	if len(buf) >= 2 {
		switch {
		case buf[0] == 0xFF && buf[1] == 0xFE:
			bigEndian = false
			buf = buf[2:]
		case buf[0] == 0xFE && buf[1] == 0xFF:
			buf = buf[2:]
		}
	}

	units := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		if bigEndian {
			units = append(units, binary.BigEndian.Uint16(buf[i:i+2]))
		} else {
			units = append(units, binary.LittleEndian.Uint16(buf[i:i+2]))
		}
	}
	return string(utf16.Decode(units)), nil
}

// key читает ключ: индекс в string pool либо инлайн-строку.
func (r *binReader) key(opts *BinaryOptions) (string, error) {
	if len(opts.StringPool) == 0 {
		return r.utf8()
	}
	idx, err := r.uint32()
	if err != nil {
		return "", err
	}
	if int(idx) >= len(opts.StringPool) {
		return "", &ParseError{
			Offset: r.pos - 4,
			Msg:    fmt.Sprintf("индекс строки %d вне пула (всего %d)", idx, len(opts.StringPool)),
		}
	}
	return opts.StringPool[idx], nil
}
