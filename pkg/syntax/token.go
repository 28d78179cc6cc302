package syntax

// TokenKind identifies a lexical token class.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokName
	TokNumber
	TokString
	TokAnnot // `--: ...` type annotation comment

	// keywords
	TokAnd
	TokBreak
	TokDo
	TokElse
	TokElseif
	TokEnd
	TokFalse
	TokFor
	TokFunction
	TokGoto
	TokIf
	TokIn
	TokLocal
	TokNil
	TokNot
	TokOr
	TokRepeat
	TokReturn
	TokThen
	TokTrue
	TokUntil
	TokWhile

	// symbols
	TokPlus     // +
	TokMinus    // -
	TokStar     // *
	TokSlash    // /
	TokPercent  // %
	TokCaret    // ^
	TokHash     // #
	TokEq       // ==
	TokNe       // ~=
	TokLe       // <=
	TokGe       // >=
	TokLt       // <
	TokGt       // >
	TokAssign   // =
	TokLParen   // (
	TokRParen   // )
	TokLBrace   // {
	TokRBrace   // }
	TokLBracket // [
	TokRBracket // ]
	TokSemi     // ;
	TokColon    // :
	TokDblColon // ::
	TokComma    // ,
	TokDot      // .
	TokConcat   // ..
	TokEllipsis // ...
)

var keywords = map[string]TokenKind{
	"and":      TokAnd,
	"break":    TokBreak,
	"do":       TokDo,
	"else":     TokElse,
	"elseif":   TokElseif,
	"end":      TokEnd,
	"false":    TokFalse,
	"for":      TokFor,
	"function": TokFunction,
	"goto":     TokGoto,
	"if":       TokIf,
	"in":       TokIn,
	"local":    TokLocal,
	"nil":      TokNil,
	"not":      TokNot,
	"or":       TokOr,
	"repeat":   TokRepeat,
	"return":   TokReturn,
	"then":     TokThen,
	"true":     TokTrue,
	"until":    TokUntil,
	"while":    TokWhile,
}

var tokenNames = map[TokenKind]string{
	TokEOF:      "end of file",
	TokName:     "name",
	TokNumber:   "number",
	TokString:   "string",
	TokAnnot:    "type annotation",
	TokPlus:     "'+'",
	TokMinus:    "'-'",
	TokStar:     "'*'",
	TokSlash:    "'/'",
	TokPercent:  "'%'",
	TokCaret:    "'^'",
	TokHash:     "'#'",
	TokEq:       "'=='",
	TokNe:       "'~='",
	TokLe:       "'<='",
	TokGe:       "'>='",
	TokLt:       "'<'",
	TokGt:       "'>'",
	TokAssign:   "'='",
	TokLParen:   "'('",
	TokRParen:   "')'",
	TokLBrace:   "'{'",
	TokRBrace:   "'}'",
	TokLBracket: "'['",
	TokRBracket: "']'",
	TokSemi:     "';'",
	TokColon:    "':'",
	TokDblColon: "'::'",
	TokComma:    "','",
	TokDot:      "'.'",
	TokConcat:   "'..'",
	TokEllipsis: "'...'",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	for kw, kind := range keywords {
		if kind == k {
			return "'" + kw + "'"
		}
	}
	return "token"
}

// Token is one lexical token with its source span.
type Token struct {
	Kind TokenKind
	Text string // raw text for names; decoded value for strings and annotations
	Num  float64
	Span Span
}
