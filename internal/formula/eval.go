package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// Resolver supplies cell values to the evaluator by canonical
// coordinates: column index into the header list, row index into the
// canonical row order.
type Resolver interface {
	CellValue(col, row int) (string, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(col, row int) (string, bool)

func (f ResolverFunc) CellValue(col, row int) (string, bool) {
	return f(col, row)
}

// Evaluator computes formula results. The grammar covers what the grid
// needs: numeric literals, quoted strings, cell references, the four
// arithmetic operators with unary minus, parentheses, string
// concatenation with &, and SUM over ranges or argument lists.
//
// Tokenization is delegated to the efp Excel formula parser; evaluation
// walks its token stream with a recursive descent.
type Evaluator struct{}

// Evaluate computes the result of a raw formula. The raw text must
// start with '='. Returned values are rendered the way the grid stores
// cells: numbers without trailing zeros, strings as-is.
func (e *Evaluator) Evaluate(raw string, res Resolver) (string, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(raw), "=")
	if !ok {
		return "", &sheet.ValidationError{Message: "formula must start with '='"}
	}
	if strings.TrimSpace(body) == "" {
		return "", &sheet.ValidationError{Message: "empty formula"}
	}

	parser := efp.ExcelParser()
	tokens := parser.Parse(body)
	if tokens == nil {
		return "", &sheet.ValidationError{Message: "unparseable formula"}
	}

	p := &evalParser{tokens: tokens, res: res}
	v, err := p.expr()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.tokens) {
		return "", &sheet.ValidationError{Message: fmt.Sprintf("unexpected token %q", p.tokens[p.pos].TValue)}
	}
	return v.render(), nil
}

// value is either a number or a string. Numeric context coerces strings
// that look like numbers; anything else is an evaluation error.
type value struct {
	num   float64
	str   string
	isNum bool
}

func numValue(n float64) value  { return value{num: n, isNum: true} }
func strValue(s string) value   { return value{str: s} }
func (v value) render() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

func (v value) toNum() (float64, error) {
	if v.isNum {
		return v.num, nil
	}
	s := strings.TrimSpace(v.str)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &sheet.ValidationError{Message: fmt.Sprintf("%q is not a number", v.str)}
	}
	return n, nil
}

func (v value) toStr() string {
	return v.render()
}

type evalParser struct {
	tokens []efp.Token
	pos    int
	res    Resolver
}

func (p *evalParser) peek() (efp.Token, bool) {
	if p.pos >= len(p.tokens) {
		return efp.Token{}, false
	}
	return p.tokens[p.pos], true
}

// expr handles the loosest-binding operators: + - and string &.
func (p *evalParser) expr() (value, error) {
	left, err := p.term()
	if err != nil {
		return value{}, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.TType != efp.TokenTypeOperatorInfix {
			return left, nil
		}
		switch t.TValue {
		case "+", "-":
			p.pos++
			right, err := p.term()
			if err != nil {
				return value{}, err
			}
			ln, err := left.toNum()
			if err != nil {
				return value{}, err
			}
			rn, err := right.toNum()
			if err != nil {
				return value{}, err
			}
			if t.TValue == "+" {
				left = numValue(ln + rn)
			} else {
				left = numValue(ln - rn)
			}
		case "&":
			p.pos++
			right, err := p.term()
			if err != nil {
				return value{}, err
			}
			left = strValue(left.toStr() + right.toStr())
		default:
			return left, nil
		}
	}
}

func (p *evalParser) term() (value, error) {
	left, err := p.factor()
	if err != nil {
		return value{}, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.TType != efp.TokenTypeOperatorInfix || (t.TValue != "*" && t.TValue != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return value{}, err
		}
		ln, err := left.toNum()
		if err != nil {
			return value{}, err
		}
		rn, err := right.toNum()
		if err != nil {
			return value{}, err
		}
		if t.TValue == "*" {
			left = numValue(ln * rn)
		} else {
			if rn == 0 {
				return value{}, &sheet.ValidationError{Message: "division by zero"}
			}
			left = numValue(ln / rn)
		}
	}
}

func (p *evalParser) factor() (value, error) {
	t, ok := p.peek()
	if !ok {
		return value{}, &sheet.ValidationError{Message: "formula ended unexpectedly"}
	}

	switch {
	case t.TType == efp.TokenTypeOperatorPrefix && t.TValue == "-":
		p.pos++
		v, err := p.factor()
		if err != nil {
			return value{}, err
		}
		n, err := v.toNum()
		if err != nil {
			return value{}, err
		}
		return numValue(-n), nil

	case t.TType == efp.TokenTypeOperand && t.TSubType == efp.TokenSubTypeNumber:
		p.pos++
		n, err := strconv.ParseFloat(t.TValue, 64)
		if err != nil {
			return value{}, &sheet.ValidationError{Message: fmt.Sprintf("bad number %q", t.TValue)}
		}
		return numValue(n), nil

	case t.TType == efp.TokenTypeOperand && t.TSubType == efp.TokenSubTypeText:
		p.pos++
		return strValue(t.TValue), nil

	case t.TType == efp.TokenTypeOperand && t.TSubType == efp.TokenSubTypeRange:
		p.pos++
		return p.cellRef(t.TValue)

	case t.TType == efp.TokenTypeSubexpression && t.TSubType == efp.TokenSubTypeStart:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return value{}, err
		}
		if err := p.expect(efp.TokenTypeSubexpression, efp.TokenSubTypeStop); err != nil {
			return value{}, err
		}
		return v, nil

	case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStart:
		return p.function(t.TValue)

	default:
		return value{}, &sheet.ValidationError{Message: fmt.Sprintf("unexpected token %q", t.TValue)}
	}
}

func (p *evalParser) expect(tType, tSubType string) error {
	t, ok := p.peek()
	if !ok || t.TType != tType || t.TSubType != tSubType {
		return &sheet.ValidationError{Message: "unbalanced parentheses"}
	}
	p.pos++
	return nil
}

// cellRef resolves a single reference like B3. Ranges reach here only
// outside SUM, where they have no scalar meaning.
func (p *evalParser) cellRef(token string) (value, error) {
	if strings.Contains(token, ":") {
		return value{}, &sheet.ValidationError{Message: fmt.Sprintf("range %q only valid inside SUM", token)}
	}
	col, row, ok := sheet.ParseRef(strings.ReplaceAll(token, "$", ""))
	if !ok {
		return value{}, &sheet.ValidationError{Message: fmt.Sprintf("bad cell reference %q", token)}
	}
	raw, ok := p.res.CellValue(col, row)
	if !ok {
		return value{}, &sheet.NotFoundError{Target: "cell", Key: token}
	}
	// A referenced cell participates as a number when it parses as one.
	if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return numValue(n), nil
	}
	return strValue(raw), nil
}

// function evaluates a function call. Only SUM is supported; arguments
// are expressions or ranges, separated by argument tokens.
func (p *evalParser) function(name string) (value, error) {
	if !strings.EqualFold(name, "SUM") {
		return value{}, &sheet.ValidationError{Message: fmt.Sprintf("unsupported function %q", name)}
	}
	p.pos++ // consume function start

	total := 0.0
	for {
		t, ok := p.peek()
		if !ok {
			return value{}, &sheet.ValidationError{Message: "unterminated SUM"}
		}
		if t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop {
			p.pos++
			return numValue(total), nil
		}
		if t.TType == efp.TokenTypeArgument {
			p.pos++
			continue
		}

		if t.TType == efp.TokenTypeOperand && t.TSubType == efp.TokenSubTypeRange && strings.Contains(t.TValue, ":") {
			p.pos++
			sum, err := p.sumRange(t.TValue)
			if err != nil {
				return value{}, err
			}
			total += sum
			continue
		}

		v, err := p.expr()
		if err != nil {
			return value{}, err
		}
		n, err := v.toNum()
		if err != nil {
			return value{}, err
		}
		total += n
	}
}

// sumRange adds the numeric cells of a rectangular range. Non-numeric
// cells are skipped, matching spreadsheet SUM semantics.
func (p *evalParser) sumRange(token string) (float64, error) {
	parts := strings.SplitN(strings.ReplaceAll(token, "$", ""), ":", 2)
	c1, r1, ok1 := sheet.ParseRef(parts[0])
	c2, r2, ok2 := sheet.ParseRef(parts[1])
	if !ok1 || !ok2 {
		return 0, &sheet.ValidationError{Message: fmt.Sprintf("bad range %q", token)}
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}

	total := 0.0
	for c := c1; c <= c2; c++ {
		for r := r1; r <= r2; r++ {
			raw, ok := p.res.CellValue(c, r)
			if !ok {
				continue
			}
			if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				total += n
			}
		}
	}
	return total, nil
}
