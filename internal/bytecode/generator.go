package bytecode

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/tac"
)

// ErrUnknownOp TAC 中出现了未定义的操作码
var ErrUnknownOp = errors.New("unknown TAC op")

// TAC 比较/算术操作到栈式操作
var binaryOps = map[tac.Op]OpCode{
	tac.OpAdd: OpAdd,
	tac.OpSub: OpSub,
	tac.OpMul: OpMul,
	tac.OpDiv: OpDiv,
	tac.OpMod: OpMod,
	tac.OpLt:  OpLt,
	tac.OpGt:  OpGt,
	tac.OpLe:  OpLe,
	tac.OpGe:  OpGe,
	tac.OpEq:  OpEq,
	tac.OpNe:  OpNe,
	tac.OpAnd: OpAnd,
	tac.OpOr:  OpOr,
}

// Generator 栈式指令生成器
type Generator struct {
	instrs []Instruction
}

// Generate 把 TAC 翻译为带注释的栈式指令，末尾保证有 HALT
func Generate(instrs []tac.Instruction) ([]Instruction, error) {
	g := &Generator{}
	for i, in := range instrs {
		if err := g.translate(in); err != nil {
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
	}
	if n := len(g.instrs); n == 0 || g.instrs[n-1].Op != OpHalt {
		g.emit(OpHalt, "", "End of program")
	}
	return g.instrs, nil
}

func (g *Generator) emit(op OpCode, operand, comment string) {
	g.instrs = append(g.instrs, Instruction{Op: op, Operand: operand, Comment: comment})
}

// load 字面量用 PUSH，其他用 LOAD
func (g *Generator) load(o tac.Operand, comment string) {
	if o.IsLiteral() {
		g.emit(OpPush, o.Text, comment)
		return
	}
	g.emit(OpLoad, o.Text, comment)
}

func (g *Generator) translate(in tac.Instruction) error {
	switch in.Op {
	case tac.OpLabel:
		comment := "Label " + in.Label
		if fn := strings.TrimPrefix(in.Label, "func_"); fn != in.Label {
			comment = "Entry of function " + fn
		}
		g.emit(OpLabel, in.Label, comment)

	case tac.OpAssign:
		if in.Arg1.IsLiteral() {
			g.load(in.Arg1, "Push literal "+in.Arg1.Text)
		} else {
			g.load(in.Arg1, "Load "+in.Arg1.Text)
		}
		g.emit(OpStore, in.Result.Text, "Store in "+in.Result.Text)

	case tac.OpAdd, tac.OpSub, tac.OpMul, tac.OpDiv, tac.OpMod:
		sym := in.Op.Symbol()
		g.load(in.Arg1, "Left operand of "+sym)
		g.load(in.Arg2, "Right operand of "+sym)
		g.emit(binaryOps[in.Op], "", fmt.Sprintf("Compute %s %s %s", in.Arg1.Text, sym, in.Arg2.Text))
		g.emit(OpStore, in.Result.Text, "Store result in "+in.Result.Text)

	case tac.OpLt, tac.OpGt, tac.OpLe, tac.OpGe, tac.OpEq, tac.OpNe:
		g.load(in.Arg1, "Left operand")
		g.load(in.Arg2, "Right operand")
		g.emit(binaryOps[in.Op], "", fmt.Sprintf("Compare %s %s %s", in.Arg1.Text, in.Op.Symbol(), in.Arg2.Text))
		g.emit(OpStore, in.Result.Text, "Store boolean result in "+in.Result.Text)

	case tac.OpAnd, tac.OpOr:
		g.load(in.Arg1, "Left operand")
		g.load(in.Arg2, "Right operand")
		g.emit(binaryOps[in.Op], "", fmt.Sprintf("Compute %s %s %s", in.Arg1.Text, in.Op.Symbol(), in.Arg2.Text))
		g.emit(OpStore, in.Result.Text, "Store in "+in.Result.Text)

	case tac.OpNot:
		g.load(in.Arg1, "Operand")
		g.emit(OpNot, "", "Logical NOT of "+in.Arg1.Text)
		g.emit(OpStore, in.Result.Text, "Store in "+in.Result.Text)

	case tac.OpNeg:
		g.load(in.Arg1, "Operand")
		g.emit(OpNeg, "", "Negate "+in.Arg1.Text)
		g.emit(OpStore, in.Result.Text, "Store in "+in.Result.Text)

	case tac.OpGoto:
		g.emit(OpJump, in.Label, "Unconditional jump to "+in.Label)

	case tac.OpIfFalse:
		g.load(in.Arg1, "Condition")
		g.emit(OpJumpF, in.Label, "Jump to "+in.Label+" if false")

	case tac.OpParam:
		g.load(in.Arg1, "Parameter")

	case tac.OpCall:
		n, err := tac.CallArgs(in)
		if err != nil {
			return errors.Wrap(err, "bad argument count")
		}
		g.emit(OpCall, in.Arg1.Text, fmt.Sprintf("Call %s with %d args", in.Arg1.Text, n))
		g.instrs[len(g.instrs)-1].Args = n
		if !in.Result.IsNone() {
			g.emit(OpStore, in.Result.Text, "Store return value in "+in.Result.Text)
		}

	case tac.OpReturn:
		if !in.Arg1.IsNone() {
			g.load(in.Arg1, "Return value")
		}
		g.emit(OpRet, "", "Return from function")

	case tac.OpArrayLoad:
		g.load(in.Arg1, "Array "+in.Arg1.Text)
		g.load(in.Arg2, "Index")
		g.emit(OpALoad, "", fmt.Sprintf("Load %s[%s]", in.Arg1.Text, in.Arg2.Text))
		g.emit(OpStore, in.Result.Text, "Store in "+in.Result.Text)

	case tac.OpArrayStore:
		g.load(in.Result, "Array "+in.Result.Text)
		g.load(in.Arg1, "Index")
		g.load(in.Arg2, "Value")
		g.emit(OpAStore, "", fmt.Sprintf("Store in %s[%s]", in.Result.Text, in.Arg1.Text))

	default:
		return errors.Wrapf(ErrUnknownOp, "%s", in.Op)
	}
	return nil
}
