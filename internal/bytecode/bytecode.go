// Package bytecode 把 TAC 翻译成教学用的栈式汇编清单
package bytecode

import "fmt"

// OpCode 栈式指令操作码
type OpCode byte

const (
	// 栈操作
	OpPush  OpCode = iota // 压入字面量
	OpLoad                // 压入变量
	OpStore               // 弹出并存入变量

	// 算术运算
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg

	// 比较运算
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNe

	// 逻辑运算
	OpAnd
	OpOr
	OpNot

	// 控制流
	OpLabel
	OpJump  // 无条件跳转
	OpJumpF // 弹出条件，为假时跳转
	OpCall
	OpRet

	// 数组
	OpALoad  // 弹出下标和数组，压入元素
	OpAStore // 弹出值、下标和数组

	OpHalt

	opCount
)

var opNames = [...]string{
	OpPush:   "PUSH",
	OpLoad:   "LOAD",
	OpStore:  "STORE",
	OpAdd:    "ADD",
	OpSub:    "SUB",
	OpMul:    "MUL",
	OpDiv:    "DIV",
	OpMod:    "MOD",
	OpNeg:    "NEG",
	OpLt:     "LT",
	OpGt:     "GT",
	OpLe:     "LE",
	OpGe:     "GE",
	OpEq:     "EQ",
	OpNe:     "NE",
	OpAnd:    "AND",
	OpOr:     "OR",
	OpNot:    "NOT",
	OpLabel:  "LABEL",
	OpJump:   "JUMP",
	OpJumpF:  "JUMPF",
	OpCall:   "CALL",
	OpRet:    "RET",
	OpALoad:  "ALOAD",
	OpAStore: "ASTORE",
	OpHalt:   "HALT",
}

func (op OpCode) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", byte(op))
}

// Instruction 一条栈式指令
type Instruction struct {
	Op      OpCode
	Operand string
	Comment string
	Args    int // 仅 CALL：参数个数
}

// String 不带注释的指令文本
func (in Instruction) String() string {
	if in.Operand == "" {
		return in.Op.String()
	}
	return fmt.Sprintf("%-12s %s", in.Op, in.Operand)
}
