package exec

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// ControlKind tells an enclosing statement how execution ended.
type ControlKind string

const (
	ControlNormal   ControlKind = "normal"
	ControlReturn   ControlKind = "return"
	ControlBreak    ControlKind = "break"
	ControlContinue ControlKind = "continue"
	ControlThrow    ControlKind = "throw"
	ControlStop     ControlKind = "stop"
)

// Control is the result of executing a statement or statement list. Value
// carries the returned or thrown value, or the value of an interpolation.
type Control struct {
	Kind  ControlKind
	Value value.Value
}

// Normal reports whether execution may continue with the next statement.
func (c Control) Normal() bool { return c.Kind == ControlNormal }

var normal = Control{Kind: ControlNormal}

// Action is returned by BeforeStatement.
type Action string

const (
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
)

// Hooks observe execution. Only nodes of a built template (non-zero ID)
// are reported.
type Hooks interface {
	// BeforeStatement runs before an executable statement. ActionStop halts
	// the render without executing the statement.
	BeforeStatement(n *ast.StatementNode) Action
	AfterStatement(n *ast.StatementNode, c Control)
	EnterBlock(n *ast.StatementNode)
	ExitBlock(n *ast.StatementNode)
	// OnLoopIteration runs before each pass of a loop body; iteration
	// counts from 1.
	OnLoopIteration(n *ast.StatementNode, iteration int)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) BeforeStatement(*ast.StatementNode) Action { return ActionContinue }
func (NopHooks) AfterStatement(*ast.StatementNode, Control) {}
func (NopHooks) EnterBlock(*ast.StatementNode)              {}
func (NopHooks) ExitBlock(*ast.StatementNode)               {}
func (NopHooks) OnLoopIteration(*ast.StatementNode, int)    {}

var (
	// ErrStopped is returned by Run.Err when a hook requested a stop.
	ErrStopped = errors.New("execution stopped")

	// ErrNotIterable is reported by for...of over a value with no items.
	ErrNotIterable = errors.New("value is not iterable")
)

// ThrowError carries a thrown script value through expression evaluation,
// for example out of a function called inside an expression.
type ThrowError struct {
	Value value.Value
}

func (e *ThrowError) Error() string {
	return "uncaught " + describe(e.Value)
}

// describe renders a thrown value for logs.
func describe(v value.Value) string {
	if v.Kind() == value.KindObject {
		name, _ := v.Object().Get("name")
		msg, hasMsg := v.Object().Get("message")
		if hasMsg {
			if name.IsNull() {
				return msg.Display()
			}
			return fmt.Sprintf("%s: %s", name.Display(), msg.Display())
		}
	}
	return v.Display()
}

// thrown converts an evaluation fault into the value bound by catch.
func thrown(err error) value.Value {
	var te *ThrowError
	if errors.As(err, &te) {
		return te.Value
	}
	name := "Error"
	switch {
	case errors.Is(err, eval.ErrNullAccess), errors.Is(err, eval.ErrNotFunction),
		errors.Is(err, eval.ErrNotAssignable), errors.Is(err, ErrNotIterable):
		name = "TypeError"
	case errors.Is(err, eval.ErrCallDepth):
		name = "RangeError"
	}
	return eval.ErrorValue(name, err.Error())
}
