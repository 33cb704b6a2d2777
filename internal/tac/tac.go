// Package tac 定义三地址码（TAC）中间表示并从 AST 生成它
package tac

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tangzhangming/kforge/internal/ast"
)

// Op TAC 操作码
type Op uint8

const (
	OpAssign Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpNot
	OpNeg
	OpLabel
	OpGoto
	OpIfFalse
	OpParam
	OpCall
	OpReturn
	OpArrayLoad
	OpArrayStore

	opCount
)

var opNames = [...]string{
	OpAssign:     "ASSIGN",
	OpAdd:        "ADD",
	OpSub:        "SUB",
	OpMul:        "MUL",
	OpDiv:        "DIV",
	OpMod:        "MOD",
	OpLt:         "LT",
	OpGt:         "GT",
	OpLe:         "LE",
	OpGe:         "GE",
	OpEq:         "EQ",
	OpNe:         "NE",
	OpAnd:        "AND",
	OpOr:         "OR",
	OpNot:        "NOT",
	OpNeg:        "NEG",
	OpLabel:      "LABEL",
	OpGoto:       "GOTO",
	OpIfFalse:    "IF_FALSE",
	OpParam:      "PARAM",
	OpCall:       "CALL",
	OpReturn:     "RETURN",
	OpArrayLoad:  "ARRAY_LOAD",
	OpArrayStore: "ARRAY_STORE",
}

// 二元运算在文本格式中的符号
var opSymbols = map[Op]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpLt:  "<",
	OpGt:  ">",
	OpLe:  "<=",
	OpGe:  ">=",
	OpEq:  "==",
	OpNe:  "!=",
	OpAnd: "&&",
	OpOr:  "||",
}

// 源码运算符到 TAC 操作码
var binaryOps = map[string]Op{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"%":  OpMod,
	"<":  OpLt,
	">":  OpGt,
	"<=": OpLe,
	">=": OpGe,
	"==": OpEq,
	"!=": OpNe,
	"&&": OpAnd,
	"||": OpOr,
}

func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Valid 是否为已定义的操作码
func (op Op) Valid() bool { return op < opCount }

// IsArithmetic ADD..MOD
func (op Op) IsArithmetic() bool { return op >= OpAdd && op <= OpMod }

// IsComparison LT..NE
func (op Op) IsComparison() bool { return op >= OpLt && op <= OpNe }

// IsBinary 二元运算（算术、比较、逻辑）
func (op Op) IsBinary() bool { return op >= OpAdd && op <= OpOr }

// Symbol 二元运算的源码符号
func (op Op) Symbol() string { return opSymbols[op] }

// ParseOp 按名字解析操作码
func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if name == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown TAC op %q", s)
}

// ============================================================================
// 操作数
// ============================================================================

// Kind 操作数种类
type Kind uint8

const (
	KindNone Kind = iota
	KindLiteral
	KindName
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLiteral:
		return "literal"
	case KindName:
		return "name"
	case KindLabel:
		return "label"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Operand 带标签的操作数；字面量保留 Kotlin 文本形式
type Operand struct {
	Kind Kind
	Text string
	Type ast.Type
}

// None 空操作数
var None = Operand{}

// IntLit 整数字面量操作数
func IntLit(v int64) Operand {
	return Operand{Kind: KindLiteral, Text: strconv.FormatInt(v, 10), Type: ast.TypeInt}
}

// DoubleLit 浮点字面量操作数
func DoubleLit(v float64) Operand {
	return Operand{Kind: KindLiteral, Text: (&ast.DoubleLit{Value: v}).String(), Type: ast.TypeDouble}
}

// StringLit 字符串字面量操作数，文本带引号
func StringLit(s string) Operand {
	return Operand{Kind: KindLiteral, Text: strconv.Quote(s), Type: ast.TypeString}
}

// BoolLit 布尔字面量操作数
func BoolLit(b bool) Operand {
	return Operand{Kind: KindLiteral, Text: strconv.FormatBool(b), Type: ast.TypeBoolean}
}

// Name 变量或临时变量
func Name(name string, typ ast.Type) Operand {
	return Operand{Kind: KindName, Text: name, Type: typ}
}

// Label 标签操作数
func Label(name string) Operand {
	return Operand{Kind: KindLabel, Text: name}
}

// IsNone 是否为空
func (o Operand) IsNone() bool { return o.Kind == KindNone }

// IsLiteral 是否为字面量
func (o Operand) IsLiteral() bool { return o.Kind == KindLiteral }

// IsName 是否为名字
func (o Operand) IsName() bool { return o.Kind == KindName }

// Property 对 "obj.prop" 形式的名字拆出对象和属性
func (o Operand) Property() (obj, prop string, ok bool) {
	if o.Kind != KindName {
		return "", "", false
	}
	i := strings.LastIndexByte(o.Text, '.')
	if i <= 0 {
		return "", "", false
	}
	return o.Text[:i], o.Text[i+1:], true
}

// Int 解析整数字面量
func (o Operand) Int() (int64, error) {
	return strconv.ParseInt(o.Text, 10, 64)
}

// Float 解析浮点字面量
func (o Operand) Float() (float64, error) {
	return strconv.ParseFloat(o.Text, 64)
}

// Str 解析字符串字面量
func (o Operand) Str() (string, error) {
	return strconv.Unquote(o.Text)
}

// Bool 解析布尔字面量
func (o Operand) Bool() (bool, error) {
	return strconv.ParseBool(o.Text)
}

func (o Operand) String() string { return o.Text }

// ============================================================================
// 指令与程序
// ============================================================================

// Instruction 一条三地址码指令
type Instruction struct {
	Op     Op
	Arg1   Operand
	Arg2   Operand
	Result Operand
	Label  string
	Line   int // 源代码行号，0 表示未知
}

// String 按固定文本格式输出，供黄金文件测试比对
func (in Instruction) String() string {
	switch in.Op {
	case OpLabel:
		return in.Label + ":"
	case OpGoto:
		return "GOTO " + in.Label
	case OpIfFalse:
		return "IF_FALSE " + in.Arg1.Text + " GOTO " + in.Label
	case OpAssign:
		return in.Result.Text + " = " + in.Arg1.Text
	case OpReturn:
		if in.Arg1.IsNone() {
			return "RETURN"
		}
		return "RETURN " + in.Arg1.Text
	case OpParam:
		return "PARAM " + in.Arg1.Text
	case OpCall:
		if in.Result.IsNone() {
			return "CALL " + in.Arg1.Text + ", " + in.Arg2.Text
		}
		return in.Result.Text + " = CALL " + in.Arg1.Text + ", " + in.Arg2.Text
	case OpArrayLoad:
		return in.Result.Text + " = " + in.Arg1.Text + "[" + in.Arg2.Text + "]"
	case OpArrayStore:
		return in.Result.Text + "[" + in.Arg1.Text + "] = " + in.Arg2.Text
	case OpNot:
		return in.Result.Text + " = !" + in.Arg1.Text
	case OpNeg:
		return in.Result.Text + " = -" + in.Arg1.Text
	}
	if in.Op.IsBinary() {
		return in.Result.Text + " = " + in.Arg1.Text + " " + in.Op.Symbol() + " " + in.Arg2.Text
	}
	return fmt.Sprintf("<%s>", in.Op)
}

// Var 有类型的变量
type Var struct {
	Name string
	Type ast.Type
}

// Func 函数在指令序列中的范围和签名
type Func struct {
	Name   string
	Params []Var
	Result ast.Type
	Start  int // LABEL func_<name> 的下标
	End    int // 不含
}

// Program TAC 程序
type Program struct {
	Instrs []Instruction
	Funcs  []Func
	Types  map[string]ast.Type // 变量、参数、临时变量的类型
}

// Func 按名字查找函数
func (p *Program) Func(name string) (Func, bool) {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return Func{}, false
}

// FuncLabel 函数入口标签名
func FuncLabel(name string) string { return "func_" + name }

// TypeOf 操作数类型；名字优先使用程序的类型表
func (p *Program) TypeOf(o Operand) ast.Type {
	if o.Type != ast.TypeUnknown {
		return o.Type
	}
	if p.Types != nil {
		if t, ok := p.Types[o.Text]; ok {
			return t
		}
	}
	return ast.TypeUnknown
}

// Format 带行号的程序清单
func Format(p *Program) string {
	var sb strings.Builder
	for i, in := range p.Instrs {
		fmt.Fprintf(&sb, "%4d:  %s\n", i, in)
	}
	return sb.String()
}

// Text 不带行号的程序文本，每行一条指令
func (p *Program) Text() string {
	var sb strings.Builder
	for _, in := range p.Instrs {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
