package eval

import (
	"strings"
	"sync"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/value"
)

// OpCode is a stack machine instruction.
type OpCode uint8

const (
	OpConst        OpCode = iota // push Consts[A]
	OpLoad                       // push the binding of Names[A], or null
	OpLoadRoot                   // like OpLoad, but an unbound name faults, pushes null and jumps to B
	OpTypeofName                 // push typeof Names[A] without faulting
	OpTree                       // push the tree-walked value of Texts[A]
	OpNot                        // logical not
	OpNeg                        // unary minus
	OpPos                        // unary plus
	OpTypeof                     // typeof of the popped value
	OpBinary                     // apply Ops[A] to the top two values
	OpJumpIfFalse                // jump to A keeping the top if falsy, else pop
	OpJumpIfTrue                 // jump to A keeping the top if truthy, else pop
	OpJumpIfNotNull              // jump to A keeping the top if not null, else pop
	OpJumpUnless                 // pop, jump to A if falsy
	OpJump                       // jump to A
	OpArray                      // collect A values into an array
	OpObject                     // collect A key/value pairs into an object
	OpConcat                     // concatenate A values as strings
	OpIndex                      // pop key and object, push object[key]
)

var opNames = [...]string{
	"const", "load", "load_root", "typeof_name", "tree", "not", "neg", "pos",
	"typeof", "binary", "jump_if_false", "jump_if_true", "jump_if_not_null",
	"jump_unless", "jump", "array", "object", "concat", "index",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// Instr is one instruction.
type Instr struct {
	Op OpCode `msgpack:"op"`
	A  int    `msgpack:"a"`
	B  int    `msgpack:"b,omitempty"`
}

// Program is a compiled expression. A Program that is not Compiled records
// that the expression has no compiled form, so the tree path is used
// without compiling again.
type Program struct {
	Code     []Instr       `msgpack:"code"`
	Consts   []value.Value `msgpack:"consts"`
	Names    []string      `msgpack:"names"`
	Texts    []string      `msgpack:"texts"`
	Ops      []string      `msgpack:"ops"`
	Deps     []string      `msgpack:"deps"`
	Compiled bool          `msgpack:"compiled"`

	mu      sync.Mutex
	storeID uint64
	shapes  []depShape
}

type depShape struct {
	shape value.Shape
	bound bool
}

// bind validates the program against store. The first use with a store
// records the shape of every dependency; later uses fail if any dependency
// was since bound to a value of a different shape.
func (p *Program) bind(store *value.Store) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.storeID != store.ID() || len(p.shapes) != len(p.Deps) {
		p.storeID = store.ID()
		p.shapes = make([]depShape, len(p.Deps))
		for i, name := range p.Deps {
			p.shapes[i].shape, p.shapes[i].bound = store.Shape(name)
		}
		return true
	}
	for i, name := range p.Deps {
		shape, bound := store.Shape(name)
		old := p.shapes[i]
		if !old.bound {
			// First assignment after compile is not a replacement.
			p.shapes[i] = depShape{shape: shape, bound: bound}
			continue
		}
		if bound && shape != old.shape {
			return false
		}
	}
	return true
}

type compiler struct {
	p  *Program
	ns string
}

// Compile compiles expr. Sub-expressions the stack machine does not cover,
// such as calls, arrow functions and spreads, become tree instructions.
func Compile(ns, expr string) *Program {
	c := &compiler{p: &Program{}, ns: ns}
	s := strings.TrimSpace(expr)
	c.expr(s)
	code := c.p.Code
	c.p.Compiled = !(len(code) == 1 && code[0].Op == OpTree)
	return c.p
}

func (c *compiler) emit(op OpCode, a int) int {
	c.p.Code = append(c.p.Code, Instr{Op: op, A: a})
	return len(c.p.Code) - 1
}

func (c *compiler) patch(at int) {
	c.p.Code[at].A = len(c.p.Code)
}

func (c *compiler) constant(v value.Value) {
	c.p.Consts = append(c.p.Consts, v)
	c.emit(OpConst, len(c.p.Consts)-1)
}

func (c *compiler) name(n string) int {
	for i, x := range c.p.Names {
		if x == n {
			return i
		}
	}
	c.p.Names = append(c.p.Names, n)
	if !contains(c.p.Deps, n) {
		c.p.Deps = append(c.p.Deps, n)
	}
	return len(c.p.Names) - 1
}

func (c *compiler) tree(s string) {
	c.p.Texts = append(c.p.Texts, s)
	c.emit(OpTree, len(c.p.Texts)-1)
}

func (c *compiler) binaryOp(op string) {
	for i, x := range c.p.Ops {
		if x == op {
			c.emit(OpBinary, i)
			return
		}
	}
	c.p.Ops = append(c.p.Ops, op)
	c.emit(OpBinary, len(c.p.Ops)-1)
}

func (c *compiler) expr(s string) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		c.constant(value.Null())
		return
	case allDigits(s):
		c.constant(value.Number(value.ParseNumber(s)))
		return
	}
	if v, ok := constants[s]; ok {
		c.constant(v)
		return
	}
	if ast.IsIdentifier(s) {
		c.emit(OpLoad, c.name(s))
		return
	}

	f := parseForm(s)
	switch f.kind {
	case formLiteral, formRaw:
		c.constant(f.lit)
	case formIdent:
		c.emit(OpLoad, c.name(f.text))
	case formNot:
		c.expr(f.sub[0])
		c.emit(OpNot, 0)
	case formTypeof:
		switch operand := f.sub[0]; {
		case operand == "undefined":
			c.constant(value.String("undefined"))
		case ast.IsIdentifier(operand):
			c.emit(OpTypeofName, c.name(operand))
		default:
			c.expr(operand)
			c.emit(OpTypeof, 0)
		}
	case formTernary:
		c.expr(f.sub[0])
		skip := c.emit(OpJumpUnless, 0)
		c.expr(f.sub[1])
		end := c.emit(OpJump, 0)
		c.patch(skip)
		c.expr(f.sub[2])
		c.patch(end)
	case formLogical:
		c.expr(f.sub[0])
		op := OpJumpIfFalse
		switch f.op {
		case "||":
			op = OpJumpIfTrue
		case "??":
			op = OpJumpIfNotNull
		}
		end := c.emit(op, 0)
		c.expr(f.sub[1])
		c.patch(end)
	case formCompare, formArith:
		c.expr(f.sub[0])
		c.expr(f.sub[1])
		c.binaryOp(f.op)
	case formUnary:
		c.expr(f.sub[0])
		if f.op == "-" {
			c.emit(OpNeg, 0)
		} else {
			c.emit(OpPos, 0)
		}
	case formTemplate:
		for _, part := range f.tmpl {
			if part.expr {
				c.expr(part.text)
			} else {
				c.constant(value.String(part.text))
			}
		}
		c.emit(OpConcat, len(f.tmpl))
	case formArray:
		for _, el := range f.sub {
			if el == "" || strings.HasPrefix(el, "...") {
				c.tree(s)
				return
			}
		}
		for _, el := range f.sub {
			c.expr(el)
		}
		c.emit(OpArray, len(f.sub))
	case formObject:
		for _, p := range f.props {
			if p.spread || p.computed {
				c.tree(s)
				return
			}
		}
		for _, p := range f.props {
			c.constant(value.String(p.key))
			c.expr(p.value)
		}
		c.emit(OpObject, len(f.props))
	case formParen:
		c.expr(f.sub[0])
	case formChain:
		if !f.chain.memberOnly() || f.chain.base == c.ns {
			c.tree(s)
			return
		}
		root := c.emit(OpLoadRoot, c.name(f.chain.base))
		for _, a := range f.chain.accs {
			if a.kind == accIndex {
				c.expr(a.expr)
			} else {
				c.constant(value.String(a.name))
			}
			c.emit(OpIndex, 0)
		}
		c.p.Code[root].B = len(c.p.Code)
	default:
		c.tree(s)
	}
}
