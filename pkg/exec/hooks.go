package exec

import "github.com/l3aro/go-template-script/pkg/ast"

// Multi fans events out to several hooks in order. BeforeStatement returns
// ActionStop as soon as one hook asks for it; later hooks are not called.
func Multi(hooks ...Hooks) Hooks {
	var list multi
	for _, h := range hooks {
		if h != nil {
			list = append(list, h)
		}
	}
	if len(list) == 1 {
		return list[0]
	}
	return list
}

type multi []Hooks

func (m multi) BeforeStatement(n *ast.StatementNode) Action {
	for _, h := range m {
		if h.BeforeStatement(n) == ActionStop {
			return ActionStop
		}
	}
	return ActionContinue
}

func (m multi) AfterStatement(n *ast.StatementNode, c Control) {
	for _, h := range m {
		h.AfterStatement(n, c)
	}
}

func (m multi) EnterBlock(n *ast.StatementNode) {
	for _, h := range m {
		h.EnterBlock(n)
	}
}

func (m multi) ExitBlock(n *ast.StatementNode) {
	for _, h := range m {
		h.ExitBlock(n)
	}
}

func (m multi) OnLoopIteration(n *ast.StatementNode, iteration int) {
	for _, h := range m {
		h.OnLoopIteration(n, iteration)
	}
}
