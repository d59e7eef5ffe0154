package eval

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-template-script/pkg/value"
)

// run executes a compiled program. It shares its operators and member
// access with the tree walker, so both paths give the same results.
func (e *Evaluator) run(env *Env, p *Program) value.Value {
	stack := make([]value.Value, 0, 8)
	pop := func() value.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	popN := func(n int) []value.Value {
		vs := append([]value.Value(nil), stack[len(stack)-n:]...)
		stack = stack[:len(stack)-n]
		return vs
	}

	for pc := 0; pc < len(p.Code); pc++ {
		in := p.Code[pc]
		switch in.Op {
		case OpConst:
			stack = append(stack, p.Consts[in.A])
		case OpLoad:
			stack = append(stack, e.lookup(env, p.Names[in.A]))
		case OpLoadRoot:
			name := p.Names[in.A]
			v, ok := e.resolve(env, name)
			if !ok {
				env.Fail(fmt.Errorf("%w: %s is not defined", ErrNullAccess, name))
				stack = append(stack, value.Null())
				pc = in.B - 1
				continue
			}
			stack = append(stack, v)
		case OpTypeofName:
			stack = append(stack, value.String(e.typeOfName(env, p.Names[in.A])))
		case OpTree:
			stack = append(stack, e.evalForm(env, parseForm(p.Texts[in.A])))
		case OpNot:
			stack = append(stack, value.Bool(!pop().Truthy()))
		case OpNeg:
			stack = append(stack, unary("-", pop()))
		case OpPos:
			stack = append(stack, unary("+", pop()))
		case OpTypeof:
			stack = append(stack, value.String(pop().TypeOf()))
		case OpBinary:
			r := pop()
			l := pop()
			stack = append(stack, binary(p.Ops[in.A], l, r))
		case OpJumpIfFalse, OpJumpIfTrue, OpJumpIfNotNull:
			top := stack[len(stack)-1]
			var jump bool
			switch in.Op {
			case OpJumpIfFalse:
				jump = !top.Truthy()
			case OpJumpIfTrue:
				jump = top.Truthy()
			default:
				jump = !top.IsNull()
			}
			if jump {
				pc = in.A - 1
				continue
			}
			pop()
		case OpJumpUnless:
			if !pop().Truthy() {
				pc = in.A - 1
			}
		case OpJump:
			pc = in.A - 1
		case OpArray:
			stack = append(stack, value.NewArray(popN(in.A)...))
		case OpObject:
			kv := popN(2 * in.A)
			o := value.NewObject()
			for i := 0; i < len(kv); i += 2 {
				o.Set(kv[i].Str(), kv[i+1])
			}
			stack = append(stack, value.ObjectOf(o))
		case OpConcat:
			var sb strings.Builder
			for _, v := range popN(in.A) {
				sb.WriteString(v.String())
			}
			stack = append(stack, value.String(sb.String()))
		case OpIndex:
			key := pop()
			obj := pop()
			stack = append(stack, e.member(env, obj, key))
		}
	}
	if len(stack) == 0 {
		return value.Null()
	}
	return stack[len(stack)-1]
}
