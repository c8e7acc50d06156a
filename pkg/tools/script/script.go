// Package script executes user supplied tool scripts in an embedded
// JavaScript interpreter. Each call runs in a fresh VM with no host
// bindings, so a script can compute over its arguments but cannot reach
// the filesystem, the network, or the process.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/tools"
)

// entrypoint the script must define
const handlerName = "handler"

var errInterrupted = errors.New("script interrupted")

// NewHandler builds a tool handler that runs source on every call. The
// script defines a handler(args) function; its return value becomes the
// tool output. Cancellation and deadlines interrupt the VM.
func NewHandler(source string) tools.ToolHandler {
	program, compileErr := goja.Compile("tool.js", source, true)

	return func(ctx context.Context, call chat.ToolCall) (*tools.ToolCallResult, error) {
		if compileErr != nil {
			return tools.ResultError(fmt.Sprintf("script compile error: %v", compileErr)), nil
		}

		args := map[string]any{}
		if raw := call.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return tools.ResultError(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err)), nil
			}
		}

		vm := goja.New()

		watchdogDone := make(chan struct{})
		defer close(watchdogDone)
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(errInterrupted)
			case <-watchdogDone:
			}
		}()

		value, err := run(vm, program, args)
		if err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, err
			}
			return tools.ResultError(fmt.Sprintf("script error: %v", err)), nil
		}

		return tools.ResultSuccess(render(value)), nil
	}
}

func run(vm *goja.Runtime, program *goja.Program, args map[string]any) (goja.Value, error) {
	if _, err := vm.RunProgram(program); err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(vm.Get(handlerName))
	if !ok {
		return nil, fmt.Errorf("script does not define a %s function", handlerName)
	}

	return fn(goja.Undefined(), vm.ToValue(args))
}

// render converts the script return value into tool output text. Strings
// pass through, everything else is serialized as JSON.
func render(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return ""
	}

	exported := value.Export()
	if s, ok := exported.(string); ok {
		return s
	}

	buf, err := json.Marshal(exported)
	if err != nil {
		return fmt.Sprint(exported)
	}
	return string(buf)
}
