package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// Calculate evaluates an arithmetic expression such as "5+3*2".
// Only literals and operators are available; no variables are exposed.
func Calculate(_ context.Context, args map[string]any) (string, error) {
	expression := strings.TrimSpace(ArgString(args, "expression"))
	if expression == "" {
		return "", errors.New("missing argument: expression")
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return "", fmt.Errorf("compile %q: %w", expression, err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expression, err)
	}

	switch v := out.(type) {
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", fmt.Errorf("evaluate %q: result is not finite", expression)
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("evaluate %q: result %v is not a number", expression, out)
	}
}
