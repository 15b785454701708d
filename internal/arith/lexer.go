package arith

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	op   byte
	num  float64
}

// operatorWords maps spoken operators to their symbol. Multi-word forms ("divided by")
// are matched on their first word; the trailing "by" is ignored like any filler word.
var operatorWords = map[string]byte{
	"plus":       '+',
	"minus":      '-',
	"times":      '*',
	"multiplied": '*',
	"divided":    '/',
	"over":       '/',
}

type verb int

const (
	verbNone verb = iota
	verbSum
	verbProduct
)

var verbWords = map[string]verb{
	"add":      verbSum,
	"sum":      verbSum,
	"multiply": verbProduct,
}

// lex turns free text into arithmetic tokens. Words that carry no arithmetic meaning
// are skipped, so "what is 2 plus 2?" lexes as 2 + 2. It also reports the first
// aggregate verb seen.
func lex(text string) ([]token, verb, error) {
	var (
		toks []token
		v    verb
	)
	s := strings.ToLower(text)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(s) && isDigit(s[i+1]):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, verbNone, err
			}
			toks = append(toks, token{kind: tokNumber, num: n})
			i = j
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, op: c})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case isLetter(c):
			j := i
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			word := s[i:j]
			i = j
			if op, ok := operatorWords[word]; ok {
				toks = append(toks, token{kind: tokOp, op: op})
				continue
			}
			if word == "x" && len(toks) > 0 && endsOperand(toks[len(toks)-1]) {
				toks = append(toks, token{kind: tokOp, op: '*'})
				continue
			}
			if vv, ok := verbWords[word]; ok && v == verbNone {
				v = vv
			}
		default:
			// Multi-byte runes: accept the common typographic operators, skip the rest.
			r, size := utf8.DecodeRuneInString(s[i:])
			switch r {
			case '×':
				toks = append(toks, token{kind: tokOp, op: '*'})
			case '÷':
				toks = append(toks, token{kind: tokOp, op: '/'})
			case '−':
				toks = append(toks, token{kind: tokOp, op: '-'})
			}
			i += size
		}
	}
	return toks, v, nil
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c < unicode.MaxASCII && unicode.IsLetter(rune(c)) }

func endsOperand(t token) bool {
	return t.kind == tokNumber || t.kind == tokRParen
}
