package tool

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// Digits, whitespace, decimal points, operators, percent signs and parentheses.
var mathExpressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

type MathEvaluateOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

type mathInput struct {
	Expression string `json:"expression"`
}

func mathDeclaration() Declaration {
	input := openapi3.NewObjectSchema().
		WithProperty("expression", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(200)).
		WithoutAdditionalProperties()
	input.Required = []string{"expression"}
	input.Properties["expression"].Value.Description = "Arithmetic expression, e.g. 14.5 * 2 * (1 - 20%). A trailing % divides by 100."

	return Declaration{
		Name:        ToolMathEvaluate,
		Description: "Evaluate an arithmetic expression. Use it for totals, discounts and price comparisons.",
		Input:       input,
		Handler: func(_ context.Context, raw map[string]any, _ *contractx.ContextBundle) (any, error) {
			var in mathInput
			if err := decodeInput(raw, &in); err != nil {
				return nil, err
			}
			return evaluateMath(in.Expression)
		},
	}
}

func evaluateMath(expression string) (MathEvaluateOutput, error) {
	expression = strings.TrimSpace(expression)
	if err := validateMathExpression(expression); err != nil {
		return MathEvaluateOutput{}, fmt.Errorf("%w: %v", contractx.ErrInvalidToolInput, err)
	}

	result, err := evaluateMathExpression(expression)
	if err != nil {
		return MathEvaluateOutput{}, fmt.Errorf("%w: %v", contractx.ErrInvalidToolInput, err)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return MathEvaluateOutput{}, fmt.Errorf("%w: result is not a finite number", contractx.ErrInvalidToolInput)
	}

	return MathEvaluateOutput{
		Expression: expression,
		Result:     math.Round(result*1e6) / 1e6,
	}, nil
}

func validateMathExpression(expression string) error {
	if expression == "" {
		return fmt.Errorf("expression is empty")
	}
	if !mathExpressionPattern.MatchString(expression) {
		return fmt.Errorf("expression contains invalid characters")
	}

	balance := 0
	for _, ch := range expression {
		switch ch {
		case '(':
			balance++
		case ')':
			balance--
			if balance < 0 {
				return fmt.Errorf("expression has unbalanced parentheses")
			}
		}
	}
	if balance != 0 {
		return fmt.Errorf("expression has unbalanced parentheses")
	}
	return nil
}

func evaluateMathExpression(expression string) (float64, error) {
	p := &mathParser{input: expression}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.hasNext() {
		return 0, fmt.Errorf("unexpected token at position %d", p.pos)
	}
	return value, nil
}

type mathParser struct {
	input string
	pos   int
}

func (p *mathParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		switch {
		case p.match('+'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.match('-'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *mathParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		switch {
		case p.match('*'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.match('/'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *mathParser) parsePower() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	p.skipSpaces()
	if p.match('^') {
		right, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(left, right), nil
	}
	return left, nil
}

func (p *mathParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.match('+') {
		return p.parseUnary()
	}
	if p.match('-') {
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parsePercent()
}

// parsePercent reads a primary with an optional trailing '%', so 20%
// evaluates to 0.2.
func (p *mathParser) parsePercent() (float64, error) {
	value, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.match('%') {
		return value / 100, nil
	}
	return value, nil
}

func (p *mathParser) parsePrimary() (float64, error) {
	p.skipSpaces()
	if p.match('(') {
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if !p.match(')') {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		return value, nil
	}
	return p.parseNumber()
}

func (p *mathParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	hasDigit := false
	hasDot := false

	for p.hasNext() {
		ch := p.peek()
		switch {
		case ch >= '0' && ch <= '9':
			hasDigit = true
			p.pos++
		case ch == '.':
			if hasDot {
				return 0, fmt.Errorf("invalid number format at position %d", p.pos)
			}
			hasDot = true
			p.pos++
		default:
			goto done
		}
	}

done:
	if !hasDigit {
		return 0, fmt.Errorf("expected number at position %d", start)
	}

	raw := p.input[start:p.pos]
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return value, nil
}

func (p *mathParser) skipSpaces() {
	for p.hasNext() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *mathParser) hasNext() bool {
	return p.pos < len(p.input)
}

func (p *mathParser) peek() byte {
	return p.input[p.pos]
}

func (p *mathParser) match(expected byte) bool {
	if p.hasNext() && p.peek() == expected {
		p.pos++
		return true
	}
	return false
}
