package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/eamonnk/agentd/pkg/tools"
)

const ToolNameCalculator = "calculator"

type CalculatorArgs struct {
	Expression string `json:"expression" jsonschema:"Arithmetic expression to evaluate"`
}

const calculatorCharset = "0123456789+-*/%(). eE"

func mathTools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        ToolNameCalculator,
			Description: "Evaluate an arithmetic expression. Supports + - * / % and parentheses.",
			Parameters:  tools.MustSchemaMap[CalculatorArgs](),
			Handler:     tools.NewHandler(handleCalculator),
		},
	}
}

func handleCalculator(_ context.Context, args CalculatorArgs) (*tools.ToolCallResult, error) {
	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		return tools.ResultError("empty expression"), nil
	}
	for _, r := range expr {
		if !strings.ContainsRune(calculatorCharset, r) {
			return tools.ResultError(fmt.Sprintf("unsupported character in expression: %q", r)), nil
		}
	}

	vm := goja.New()
	value, err := vm.RunString(expr)
	if err != nil {
		return tools.ResultError(fmt.Sprintf("invalid expression: %v", err)), nil
	}

	return tools.ResultSuccess(value.String()), nil
}
