package machine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// LINE_MAX is the longest accepted source line, in bytes.
const LINE_MAX = 256

var sourceLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Register", Pattern: `(AX|BX|CX|DX)\b`},
	{Name: "Number", Pattern: `[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Bracket", Pattern: `[\[\]]`},
	{Name: "Word", Pattern: `[^\s\[\]]+`},
})

// target is a register name or a numeric literal.
type target struct {
	Register *string  `@Register`
	Number   *float64 `| @Number`
}

// operand is the single operand of a statement. The bracketed form
// addresses memory; a bare word is a jump label.
type operand struct {
	Ram    *target `"[" @@ "]"`
	Direct *target `| @@`
	Label  *string `| @Word`
}

// statement is one instruction line.
type statement struct {
	Mnemonic string   `@Word`
	Operand  *operand `@@?`
}

var statementParser = participle.MustBuild[statement](
	participle.Lexer(sourceLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// parseStatement parses a trimmed, non-label source line.
func parseStatement(line string) (st *statement, err error) {
	st, err = statementParser.ParseString("", line)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		st = nil
	}
	return
}

// parseLabel recognizes a label definition line. A label line is a
// single whitespace-free token ending in ':'; the name is everything
// up to the first ':' and may be any non-whitespace text, so it is
// matched here rather than in the token rules.
func parseLabel(line string) (name string, ok bool) {
	if strings.ContainsAny(line, " \t") || !strings.HasSuffix(line, ":") {
		return
	}

	name, _, _ = strings.Cut(line, ":")
	if len(name) == 0 {
		return
	}

	ok = true
	return
}

// parenEval does compile-time $(...) evaluations.
func parenEval(expr string) (value float64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		err = ExpressionError(expr)
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ExpressionError(expr)
		return
	}
	switch v := st_rc.(type) {
	case starlark.Int:
		value, _ = starlark.AsFloat(v)
	case starlark.Float:
		value = float64(v)
	default:
		err = ExpressionError(expr)
		return
	}
	if !isFinite(value) {
		err = ExpressionError(expr)
		return
	}
	return
}

var exprRe = regexp.MustCompile(`\$\([^\$]*\)`)

// expandExpressions substitutes every $(...) in line with its
// evaluated value.
func expandExpressions(line string) (out string, err error) {
	out = exprRe.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return strconv.FormatFloat(value, 'g', -1, 64)
	})
	if err != nil {
		out = ""
	}
	return
}
