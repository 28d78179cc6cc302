package syntax

import (
	"fmt"
	"strconv"
	"strings"
)

// Lexer produces tokens from Lua source. It keeps `--:` annotation comments
// as TokAnnot tokens and drops all other comments.
type Lexer struct {
	file string
	src  string

	off  int
	line int
	col  int

	err *Error // first unrecoverable lexical failure
}

// NewLexer returns a lexer over src, attributing spans to file.
func NewLexer(file, src string) *Lexer {
	return &Lexer{file: file, src: src, line: 1, col: 1}
}

// Err returns the fatal lexical error, if any occurred.
func (lx *Lexer) Err() *Error { return lx.err }

func (lx *Lexer) pos() Position {
	return Position{Line: lx.line, Column: lx.col, Offset: lx.off}
}

func (lx *Lexer) peek() byte {
	if lx.off >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off]
}

func (lx *Lexer) peekAt(n int) byte {
	if lx.off+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+n]
}

func (lx *Lexer) advance() byte {
	c := lx.src[lx.off]
	lx.off++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *Lexer) span(start Position) Span {
	return Span{File: lx.file, Start: start, End: lx.pos()}
}

// Next returns the next token, TokEOF at end of input.
func (lx *Lexer) Next() Token {
	for {
		lx.skipSpace()
		start := lx.pos()
		c := lx.peek()
		if c == 0 {
			return Token{Kind: TokEOF, Span: lx.span(start)}
		}

		switch {
		case isNameStart(c):
			return lx.name(start)
		case isDigit(c) || (c == '.' && isDigit(lx.peekAt(1))):
			return lx.number(start)
		case c == '"' || c == '\'':
			return lx.shortString(start)
		}

		lx.advance()
		switch c {
		case '+':
			return Token{Kind: TokPlus, Span: lx.span(start)}
		case '*':
			return Token{Kind: TokStar, Span: lx.span(start)}
		case '/':
			return Token{Kind: TokSlash, Span: lx.span(start)}
		case '%':
			return Token{Kind: TokPercent, Span: lx.span(start)}
		case '^':
			return Token{Kind: TokCaret, Span: lx.span(start)}
		case '#':
			return Token{Kind: TokHash, Span: lx.span(start)}
		case ';':
			return Token{Kind: TokSemi, Span: lx.span(start)}
		case ',':
			return Token{Kind: TokComma, Span: lx.span(start)}
		case '(':
			return Token{Kind: TokLParen, Span: lx.span(start)}
		case ')':
			return Token{Kind: TokRParen, Span: lx.span(start)}
		case '{':
			return Token{Kind: TokLBrace, Span: lx.span(start)}
		case '}':
			return Token{Kind: TokRBrace, Span: lx.span(start)}
		case ']':
			return Token{Kind: TokRBracket, Span: lx.span(start)}
		case '[':
			if lx.peek() == '[' || lx.peek() == '=' {
				if tok, ok := lx.longString(start); ok {
					return tok
				}
			}
			return Token{Kind: TokLBracket, Span: lx.span(start)}
		case ':':
			if lx.peek() == ':' {
				lx.advance()
				return Token{Kind: TokDblColon, Span: lx.span(start)}
			}
			return Token{Kind: TokColon, Span: lx.span(start)}
		case '=':
			if lx.peek() == '=' {
				lx.advance()
				return Token{Kind: TokEq, Span: lx.span(start)}
			}
			return Token{Kind: TokAssign, Span: lx.span(start)}
		case '~':
			if lx.peek() == '=' {
				lx.advance()
				return Token{Kind: TokNe, Span: lx.span(start)}
			}
			lx.fail(start, "unexpected character '~'")
			continue
		case '<':
			if lx.peek() == '=' {
				lx.advance()
				return Token{Kind: TokLe, Span: lx.span(start)}
			}
			return Token{Kind: TokLt, Span: lx.span(start)}
		case '>':
			if lx.peek() == '=' {
				lx.advance()
				return Token{Kind: TokGe, Span: lx.span(start)}
			}
			return Token{Kind: TokGt, Span: lx.span(start)}
		case '.':
			if lx.peek() == '.' {
				lx.advance()
				if lx.peek() == '.' {
					lx.advance()
					return Token{Kind: TokEllipsis, Span: lx.span(start)}
				}
				return Token{Kind: TokConcat, Span: lx.span(start)}
			}
			return Token{Kind: TokDot, Span: lx.span(start)}
		case '-':
			if lx.peek() != '-' {
				return Token{Kind: TokMinus, Span: lx.span(start)}
			}
			lx.advance()
			if tok, keep := lx.comment(start); keep {
				return tok
			}
			continue
		default:
			lx.fail(start, fmt.Sprintf("unexpected character %q", c))
			continue
		}
	}
}

func (lx *Lexer) skipSpace() {
	for {
		switch lx.peek() {
		case ' ', '\t', '\r', '\n':
			lx.advance()
		default:
			return
		}
	}
}

func (lx *Lexer) name(start Position) Token {
	for isNameChar(lx.peek()) {
		lx.advance()
	}
	text := lx.src[start.Offset:lx.off]
	if kw, ok := keywords[text]; ok {
		return Token{Kind: kw, Text: text, Span: lx.span(start)}
	}
	return Token{Kind: TokName, Text: text, Span: lx.span(start)}
}

func (lx *Lexer) number(start Position) Token {
	if lx.peek() == '0' && (lx.peekAt(1) == 'x' || lx.peekAt(1) == 'X') {
		lx.advance()
		lx.advance()
		for isHexDigit(lx.peek()) {
			lx.advance()
		}
	} else {
		for isDigit(lx.peek()) {
			lx.advance()
		}
		if lx.peek() == '.' {
			lx.advance()
			for isDigit(lx.peek()) {
				lx.advance()
			}
		}
		if lx.peek() == 'e' || lx.peek() == 'E' {
			lx.advance()
			if lx.peek() == '+' || lx.peek() == '-' {
				lx.advance()
			}
			for isDigit(lx.peek()) {
				lx.advance()
			}
		}
	}
	text := lx.src[start.Offset:lx.off]
	val, err := parseLuaNumber(text)
	if err != nil {
		lx.fail(start, fmt.Sprintf("malformed number %q", text))
	}
	return Token{Kind: TokNumber, Text: text, Num: val, Span: lx.span(start)}
}

func (lx *Lexer) shortString(start Position) Token {
	quote := lx.advance()
	var sb strings.Builder
	for {
		c := lx.peek()
		if c == 0 || c == '\n' {
			lx.fail(start, "unfinished string")
			return Token{Kind: TokString, Text: sb.String(), Span: lx.span(start)}
		}
		lx.advance()
		if c == quote {
			break
		}
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		esc := lx.peek()
		if esc == 0 {
			lx.fail(start, "unfinished string")
			break
		}
		lx.advance()
		switch esc {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '\\', '"', '\'', '\n':
			sb.WriteByte(esc)
		default:
			if isDigit(esc) {
				n := int(esc - '0')
				for i := 0; i < 2 && isDigit(lx.peek()); i++ {
					n = n*10 + int(lx.advance()-'0')
				}
				sb.WriteByte(byte(n))
			} else {
				sb.WriteByte(esc)
			}
		}
	}
	return Token{Kind: TokString, Text: sb.String(), Span: lx.span(start)}
}

// longString lexes [[...]] and [=[...]=] forms. The opening '[' has already
// been consumed. Returns ok=false when the bracket level does not open a
// long string after all.
func (lx *Lexer) longString(start Position) (Token, bool) {
	level := 0
	probe := 0
	for lx.peekAt(probe) == '=' {
		level++
		probe++
	}
	if lx.peekAt(probe) != '[' {
		return Token{}, false
	}
	for i := 0; i <= level; i++ {
		lx.advance()
	}
	if lx.peek() == '\n' {
		lx.advance()
	}
	closer := "]" + strings.Repeat("=", level) + "]"
	idx := strings.Index(lx.src[lx.off:], closer)
	if idx < 0 {
		for lx.peek() != 0 {
			lx.advance()
		}
		lx.fail(start, "unfinished long string")
		return Token{Kind: TokString, Span: lx.span(start)}, true
	}
	text := lx.src[lx.off : lx.off+idx]
	for i := 0; i < idx+len(closer); i++ {
		lx.advance()
	}
	return Token{Kind: TokString, Text: text, Span: lx.span(start)}, true
}

// comment handles everything after `--`. Annotation comments (`--:`) become
// tokens; others are skipped.
func (lx *Lexer) comment(start Position) (Token, bool) {
	if lx.peek() == '[' {
		lx.advance()
		if _, ok := lx.longString(start); ok {
			return Token{}, false
		}
	}
	annot := lx.peek() == ':'
	if annot {
		lx.advance()
	}
	lineStart := lx.off
	for lx.peek() != 0 && lx.peek() != '\n' {
		lx.advance()
	}
	if annot {
		text := strings.TrimSpace(lx.src[lineStart:lx.off])
		return Token{Kind: TokAnnot, Text: text, Span: lx.span(start)}, true
	}
	return Token{}, false
}

func (lx *Lexer) fail(at Position, msg string) {
	if lx.err == nil {
		lx.err = &Error{
			Span: Span{File: lx.file, Start: at, End: lx.pos()},
			Msg:  msg,
		}
	}
}

func parseLuaNumber(text string) (float64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		n, err := strconv.ParseUint(text[2:], 16, 64)
		return float64(n), err
	}
	return strconv.ParseFloat(text, 64)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
