// Package modules is the reference capability executor behind the tp
// namespace. It serves tp.date, tp.file and tp.system so templates can be
// rendered from the command line.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

var (
	// ErrUnknownFunction is returned for a path no module serves.
	ErrUnknownFunction = errors.New("unknown module function")
	// ErrNoFile is returned by tp.file calls when no file is attached.
	ErrNoFile = errors.New("no file attached")
	// ErrNoPrompter is returned by tp.system calls in non-interactive runs.
	ErrNoPrompter = errors.New("interactive prompts are disabled")
	// ErrCancelled is returned when a prompt asked to throw on cancel was
	// dismissed.
	ErrCancelled = errors.New("cancelled by user")
)

type handler func(ctx context.Context, args []value.Value) eval.ModuleResult

// Executor dispatches module calls by dotted name, for example "date.now".
type Executor struct {
	file     *File
	clock    func() time.Time
	prompter Prompter
	logger   log.Logger
	handlers map[string]handler
}

// Option configures an Executor.
type Option func(*Executor)

// WithFile attaches the file tp.file describes.
func WithFile(f *File) Option {
	return func(x *Executor) { x.file = f }
}

// WithClock overrides the time source of tp.date.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) {
		if now != nil {
			x.clock = now
		}
	}
}

// WithPrompter enables tp.system prompts.
func WithPrompter(p Prompter) Option {
	return func(x *Executor) { x.prompter = p }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	x := &Executor{
		clock:  time.Now,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.handlers = map[string]handler{}
	x.registerDate()
	x.registerFile()
	x.registerSystem()
	return x
}

// Functions lists the dotted names the executor serves.
func (x *Executor) Functions() []string {
	names := make([]string, 0, len(x.handlers))
	for name := range x.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteModule implements eval.ModuleExecutor.
func (x *Executor) ExecuteModule(ctx context.Context, call eval.ModuleCall) eval.ModuleResult {
	name := call.Name()
	h, ok := x.handlers[name]
	if !ok {
		return eval.Failed(fmt.Errorf("%w: %s", ErrUnknownFunction, name))
	}
	if err := ctx.Err(); err != nil {
		return eval.Failed(err)
	}
	res := h(ctx, call.Args)
	x.logger.Debug("module call", "call", name, "args", len(call.Args), "status", res.Status)
	return res
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Null()
}

// stringArg returns args[i] as a string, or def when it is missing or null.
func stringArg(args []value.Value, i int, def string) string {
	v := arg(args, i)
	if v.IsNull() {
		return def
	}
	return v.String()
}

func boolArg(args []value.Value, i int) bool {
	return arg(args, i).Truthy()
}
