package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// Prompter asks the user for input. Implementations return ErrCancelled (or
// an error wrapping it) when the user dismisses the prompt.
type Prompter interface {
	Prompt(ctx context.Context, message, def string, multiline bool) (string, error)
	Suggest(ctx context.Context, placeholder string, options []string) (int, error)
}

// HuhPrompter prompts on the terminal.
type HuhPrompter struct {
	// Accessible switches huh to its screen-reader friendly mode.
	Accessible bool
}

// Prompt implements Prompter.
func (p HuhPrompter) Prompt(ctx context.Context, message, def string, multiline bool) (string, error) {
	answer := def
	var field huh.Field
	if multiline {
		field = huh.NewText().Title(message).Value(&answer)
	} else {
		field = huh.NewInput().Title(message).Placeholder(def).Value(&answer)
	}
	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return answer, nil
}

// Suggest implements Prompter.
func (p HuhPrompter) Suggest(ctx context.Context, placeholder string, options []string) (int, error) {
	choice := 0
	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, i)
	}
	title := placeholder
	if title == "" {
		title = "Select an item"
	}
	if err := p.run(ctx, huh.NewSelect[int]().Title(title).Options(opts...).Value(&choice)); err != nil {
		return -1, err
	}
	return choice, nil
}

func (p HuhPrompter) run(ctx context.Context, field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).WithAccessible(p.Accessible).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCancelled
	}
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	return nil
}

// dismissed maps a cancelled prompt to Cancelled, or to a failure when the
// call asked to throw on cancel.
func dismissed(err error, throw bool) eval.ModuleResult {
	if throw || !errors.Is(err, ErrCancelled) {
		return eval.Failed(err)
	}
	return eval.Cancelled()
}

func (x *Executor) registerSystem() {
	// prompt(message, default, throw_on_cancel, multiline)
	x.handlers["system.prompt"] = func(ctx context.Context, args []value.Value) eval.ModuleResult {
		if x.prompter == nil {
			return eval.Failed(ErrNoPrompter)
		}
		answer, err := x.prompter.Prompt(ctx, stringArg(args, 0, ""), stringArg(args, 1, ""), boolArg(args, 3))
		if err != nil {
			return dismissed(err, boolArg(args, 2))
		}
		return eval.OK(value.String(answer))
	}
	// suggester(texts, items, throw_on_cancel, placeholder)
	x.handlers["system.suggester"] = func(ctx context.Context, args []value.Value) eval.ModuleResult {
		if x.prompter == nil {
			return eval.Failed(ErrNoPrompter)
		}
		items := arg(args, 1).Array()
		if items == nil || items.Len() == 0 {
			return eval.Failed(errors.New("suggester needs a non-empty item list"))
		}
		texts := make([]string, items.Len())
		labels := arg(args, 0).Array()
		for i := range texts {
			if labels != nil && i < labels.Len() {
				texts[i] = labels.At(i).Display()
			} else {
				texts[i] = items.At(i).Display()
			}
		}
		choice, err := x.prompter.Suggest(ctx, stringArg(args, 3, ""), texts)
		if err != nil {
			return dismissed(err, boolArg(args, 2))
		}
		if choice < 0 || choice >= items.Len() {
			return eval.Cancelled()
		}
		return eval.OK(items.At(choice))
	}
}
