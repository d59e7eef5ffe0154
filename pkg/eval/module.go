package eval

import (
	"context"
	"strings"

	"github.com/l3aro/go-template-script/pkg/value"
)

// DefaultNamespace is the root identifier under which capability modules are
// reachable from scripts.
const DefaultNamespace = "tp"

// Status is the outcome of a module call.
type Status string

const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled" // e.g. the user dismissed a prompt
)

// ModuleCall describes one call into a capability module, for example
// tp.date.now("YYYY") has Namespace "tp", Path ["date", "now"] and one
// argument. Property is set for reads such as tp.file.title that are not
// followed by a call.
type ModuleCall struct {
	Namespace string        `json:"namespace,omitempty"`
	Path      []string      `json:"path"`
	Args      []value.Value `json:"args,omitempty"`
	Property  bool          `json:"property,omitempty"`
}

// Name returns the dotted path of the call without its namespace.
func (c ModuleCall) Name() string {
	return strings.Join(c.Path, ".")
}

// ModuleResult is returned by a ModuleExecutor. Only StatusOK results carry a
// usable Value; errors and cancellations evaluate to null.
type ModuleResult struct {
	Status Status
	Value  value.Value
	Err    error
}

// OK wraps a successful module result.
func OK(v value.Value) ModuleResult { return ModuleResult{Status: StatusOK, Value: v} }

// Failed wraps a module error.
func Failed(err error) ModuleResult { return ModuleResult{Status: StatusError, Err: err} }

// Cancelled reports a call the user dismissed.
func Cancelled() ModuleResult { return ModuleResult{Status: StatusCancelled} }

// ModuleExecutor runs capability module calls for the evaluator.
type ModuleExecutor interface {
	ExecuteModule(ctx context.Context, call ModuleCall) ModuleResult
}

// ModuleFunc adapts a function to ModuleExecutor.
type ModuleFunc func(ctx context.Context, call ModuleCall) ModuleResult

// ExecuteModule implements ModuleExecutor.
func (f ModuleFunc) ExecuteModule(ctx context.Context, call ModuleCall) ModuleResult {
	return f(ctx, call)
}

// FrontmatterAccessor exposes the document's frontmatter under
// <namespace>.frontmatter.
type FrontmatterAccessor interface {
	GetValue(path []string) (value.Value, bool)
	GetAll() map[string]value.Value
}

// Invoker runs functions whose body is a statement list. The statement
// executor implements it; the evaluator only handles native and
// expression-bodied functions itself.
type Invoker interface {
	Invoke(env *Env, fn *value.Function, args []value.Value) value.Value
}
