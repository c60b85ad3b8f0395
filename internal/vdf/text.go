// text.go — разбор текстового VDF (loginusers.vdf и подобные).
//
// Грамматика:
//
//	документ := пара*
//	пара     := ключ (значение | "{" пара* "}")
//	ключ, значение — строки в кавычках либо голые токены
//
// Комментарии // до конца строки. Escape-последовательности в
// кавычных строках: \" \\ \n \t. Массивов в формате нет — повторение
// кодируется повторяющимися ключами, побеждает последний (last wins).
package vdf

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseText разбирает текстовый VDF-документ в корневой узел.
// Нарушенная вложенность (лишняя или незакрытая скобка) и обрыв
// строки возвращают ParseError.
func ParseText(input string) (*Node, error) {
	lex := &textLexer{input: input, line: 1}
	root := NewNode()
	if err := parsePairs(lex, root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

// parsePairs читает пары ключ/значение до закрывающей скобки
// (depth > 0) либо до конца входа (depth == 0).
func parsePairs(lex *textLexer, node *Node, depth int) error {
	for {
		tok, err := lex.next()
		if err != nil {
			return err
		}

		switch tok.kind {
		case tokenEOF:
			if depth > 0 {
				return &ParseError{Offset: lex.line, Msg: "неожиданный конец входа: незакрытая скобка"}
			}
			return nil
		case tokenCloseBrace:
			if depth == 0 {
				return &ParseError{Offset: lex.line, Msg: "закрывающая скобка без открывающей"}
			}
			return nil
		case tokenOpenBrace:
			return &ParseError{Offset: lex.line, Msg: "открывающая скобка на месте ключа"}
		}

		// tok — ключ; дальше значение либо вложенный узел
		val, err := lex.next()
		if err != nil {
			return err
		}

		switch val.kind {
		case tokenString:
			node.Set(tok.text, Value{Kind: KindString, Str: val.text})
		case tokenOpenBrace:
			child := NewNode()
			if err := parsePairs(lex, child, depth+1); err != nil {
				return err
			}
			node.Set(tok.text, Value{Kind: KindNode, Node: child})
		case tokenEOF:
			return &ParseError{Offset: lex.line, Msg: fmt.Sprintf("ключ %q без значения", tok.text)}
		default:
			return &ParseError{Offset: lex.line, Msg: fmt.Sprintf("неожиданный токен после ключа %q", tok.text)}
		}
	}
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenString
	tokenOpenBrace
	tokenCloseBrace
)

type token struct {
	kind tokenKind
	text string
}

// textLexer — посимвольный лексер текстового VDF.
type textLexer struct {
	input string
	pos   int
	line  int
}

// next возвращает следующий токен, пропуская пробелы и комментарии.
func (l *textLexer) next() (token, error) {
	l.skipSpaceAndComments()

	if l.pos >= len(l.input) {
		return token{kind: tokenEOF}, nil
	}

	switch c := l.input[l.pos]; c {
	case '{':
		l.pos++
		return token{kind: tokenOpenBrace}, nil
	case '}':
		l.pos++
		return token{kind: tokenCloseBrace}, nil
	case '"':
		return l.quotedString()
	default:
		return l.bareToken(), nil
	}
}

// quotedString читает строку в кавычках с учётом escape-последовательностей.
func (l *textLexer) quotedString() (token, error) {
	l.pos++ // открывающая кавычка
	var sb strings.Builder

	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{kind: tokenString, text: sb.String()}, nil
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, &ParseError{Offset: l.line, Msg: "обрыв escape-последовательности"}
			}
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				// \" и \\ — буквальный символ; незнакомые пропускаем как есть
				sb.WriteByte(esc)
			}
			l.pos++
		case '\n':
			return token{}, &ParseError{Offset: l.line, Msg: "перевод строки внутри кавычной строки"}
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}

	return token{}, &ParseError{Offset: l.line, Msg: "незакрытая кавычная строка"}
}

// bareToken читает голый токен до пробела или спецсимвола.
func (l *textLexer) bareToken() token {
	start := l.pos
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if unicode.IsSpace(rune(c)) || c == '{' || c == '}' || c == '"' {
			break
		}
		l.pos++
	}
	return token{kind: tokenString, text: l.input[start:l.pos]}
}

// skipSpaceAndComments пропускает пробельные символы и комментарии //.
func (l *textLexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case unicode.IsSpace(rune(c)):
			l.pos++
		case c == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}
