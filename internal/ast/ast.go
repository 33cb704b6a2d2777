// Package ast 定义 Kotlin 子集的类型化语法树，是代码生成后端的输入
package ast

import (
	"strconv"
	"strings"
)

// Node 是所有 AST 节点的基接口
type Node interface {
	Pos() int       // 源代码行号，未知时为 0
	String() string // 节点的字符串表示（用于调试）
}

// Expr 表示一个表达式节点
type Expr interface {
	Node
	Type() Type
	exprNode()
}

// Stmt 表示一个语句节点
type Stmt interface {
	Node
	stmtNode()
}

// ============================================================================
// 声明
// ============================================================================

// File 一个编译单元，Decls 中是 *FuncDecl 或顶层语句
type File struct {
	Decls []Node
}

// Param 函数参数
type Param struct {
	Name string
	Type Type
}

// FuncDecl 函数声明
type FuncDecl struct {
	Name   string
	Params []*Param
	Result Type
	Body   *Block
	Line   int
}

func (d *FuncDecl) Pos() int { return d.Line }
func (d *FuncDecl) String() string {
	var sb strings.Builder
	sb.WriteString("fun ")
	sb.WriteString(d.Name)
	sb.WriteString("(")
	for i, p := range d.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name + ": " + p.Type.String())
	}
	sb.WriteString(")")
	if d.Result != TypeUnit && d.Result != TypeUnknown {
		sb.WriteString(": " + d.Result.String())
	}
	return sb.String()
}

// ============================================================================
// 语句
// ============================================================================

// Block 语句块
type Block struct {
	Stmts []Stmt
	Line  int
}

func (s *Block) Pos() int       { return s.Line }
func (s *Block) String() string { return "{...}" }
func (s *Block) stmtNode()      {}

// VarDecl val/var 声明
type VarDecl struct {
	Name    string
	Type    Type
	Mutable bool
	Init    Expr
	Line    int
}

func (s *VarDecl) Pos() int { return s.Line }
func (s *VarDecl) String() string {
	kw := "val"
	if s.Mutable {
		kw = "var"
	}
	if s.Init == nil {
		return kw + " " + s.Name + ": " + s.Type.String()
	}
	return kw + " " + s.Name + ": " + s.Type.String() + " = " + s.Init.String()
}
func (s *VarDecl) stmtNode() {}

// AssignStmt 赋值，Target 为 *Ident 或 *IndexExpr
type AssignStmt struct {
	Target Expr
	Value  Expr
	Line   int
}

func (s *AssignStmt) Pos() int       { return s.Line }
func (s *AssignStmt) String() string { return s.Target.String() + " = " + s.Value.String() }
func (s *AssignStmt) stmtNode()      {}

// IfStmt if 语句，Else 可为 nil
type IfStmt struct {
	Cond Expr
	Then *Block
	Else *Block
	Line int
}

func (s *IfStmt) Pos() int       { return s.Line }
func (s *IfStmt) String() string { return "if (" + s.Cond.String() + ")" }
func (s *IfStmt) stmtNode()      {}

// WhileStmt while 循环
type WhileStmt struct {
	Cond Expr
	Body *Block
	Line int
}

func (s *WhileStmt) Pos() int       { return s.Line }
func (s *WhileStmt) String() string { return "while (" + s.Cond.String() + ")" }
func (s *WhileStmt) stmtNode()      {}

// ForStmt for (v in a..b) 循环
type ForStmt struct {
	Var   string
	Range *RangeExpr
	Body  *Block
	Line  int
}

func (s *ForStmt) Pos() int       { return s.Line }
func (s *ForStmt) String() string { return "for (" + s.Var + " in " + s.Range.String() + ")" }
func (s *ForStmt) stmtNode()      {}

// ReturnStmt return 语句，Value 可为 nil
type ReturnStmt struct {
	Value Expr
	Line  int
}

func (s *ReturnStmt) Pos() int { return s.Line }
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}
func (s *ReturnStmt) stmtNode() {}

// BreakStmt break
type BreakStmt struct {
	Line int
}

func (s *BreakStmt) Pos() int       { return s.Line }
func (s *BreakStmt) String() string { return "break" }
func (s *BreakStmt) stmtNode()      {}

// ContinueStmt continue
type ContinueStmt struct {
	Line int
}

func (s *ContinueStmt) Pos() int       { return s.Line }
func (s *ContinueStmt) String() string { return "continue" }
func (s *ContinueStmt) stmtNode()      {}

// ExprStmt 表达式语句
type ExprStmt struct {
	X    Expr
	Line int
}

func (s *ExprStmt) Pos() int       { return s.Line }
func (s *ExprStmt) String() string { return s.X.String() }
func (s *ExprStmt) stmtNode()      {}

// ============================================================================
// 表达式
// ============================================================================

// IntLit 整数字面量
type IntLit struct {
	Value int64
	Line  int
}

func (e *IntLit) Pos() int       { return e.Line }
func (e *IntLit) String() string { return strconv.FormatInt(e.Value, 10) }
func (e *IntLit) Type() Type     { return TypeInt }
func (e *IntLit) exprNode()      {}

// DoubleLit 浮点字面量
type DoubleLit struct {
	Value float64
	Line  int
}

func (e *DoubleLit) Pos() int { return e.Line }
func (e *DoubleLit) String() string {
	s := strconv.FormatFloat(e.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
func (e *DoubleLit) Type() Type { return TypeDouble }
func (e *DoubleLit) exprNode()  {}

// StringLit 字符串字面量
type StringLit struct {
	Value string
	Line  int
}

func (e *StringLit) Pos() int       { return e.Line }
func (e *StringLit) String() string { return strconv.Quote(e.Value) }
func (e *StringLit) Type() Type     { return TypeString }
func (e *StringLit) exprNode()      {}

// BoolLit 布尔字面量
type BoolLit struct {
	Value bool
	Line  int
}

func (e *BoolLit) Pos() int       { return e.Line }
func (e *BoolLit) String() string { return strconv.FormatBool(e.Value) }
func (e *BoolLit) Type() Type     { return TypeBoolean }
func (e *BoolLit) exprNode()      {}

// Ident 标识符引用
type Ident struct {
	Name string
	Typ  Type
	Line int
}

func (e *Ident) Pos() int       { return e.Line }
func (e *Ident) String() string { return e.Name }
func (e *Ident) Type() Type     { return e.Typ }
func (e *Ident) exprNode()      {}

// BinaryExpr 二元表达式
type BinaryExpr struct {
	Op   string
	X, Y Expr
	Typ  Type
	Line int
}

func (e *BinaryExpr) Pos() int { return e.Line }
func (e *BinaryExpr) String() string {
	return "(" + e.X.String() + " " + e.Op + " " + e.Y.String() + ")"
}
func (e *BinaryExpr) Type() Type { return e.Typ }
func (e *BinaryExpr) exprNode()  {}

// UnaryExpr 一元表达式（! 或 -）
type UnaryExpr struct {
	Op   string
	X    Expr
	Typ  Type
	Line int
}

func (e *UnaryExpr) Pos() int       { return e.Line }
func (e *UnaryExpr) String() string { return e.Op + e.X.String() }
func (e *UnaryExpr) Type() Type     { return e.Typ }
func (e *UnaryExpr) exprNode()      {}

// CallExpr 函数调用
type CallExpr struct {
	Func string
	Args []Expr
	Typ  Type
	Line int
}

func (e *CallExpr) Pos() int { return e.Line }
func (e *CallExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Func + "(" + strings.Join(args, ", ") + ")"
}
func (e *CallExpr) Type() Type { return e.Typ }
func (e *CallExpr) exprNode()  {}

// IndexExpr 数组下标访问
type IndexExpr struct {
	X     Expr
	Index Expr
	Typ   Type
	Line  int
}

func (e *IndexExpr) Pos() int       { return e.Line }
func (e *IndexExpr) String() string { return e.X.String() + "[" + e.Index.String() + "]" }
func (e *IndexExpr) Type() Type     { return e.Typ }
func (e *IndexExpr) exprNode()      {}

// PropertyExpr 属性访问，目前只有 size 和 length
type PropertyExpr struct {
	X    Expr
	Name string
	Line int
}

func (e *PropertyExpr) Pos() int       { return e.Line }
func (e *PropertyExpr) String() string { return e.X.String() + "." + e.Name }
func (e *PropertyExpr) Type() Type     { return TypeInt }
func (e *PropertyExpr) exprNode()      {}

// RangeExpr 区间 a..b 或 a until b
type RangeExpr struct {
	From, To Expr
	Until    bool
	Line     int
}

func (e *RangeExpr) Pos() int { return e.Line }
func (e *RangeExpr) String() string {
	if e.Until {
		return e.From.String() + " until " + e.To.String()
	}
	return e.From.String() + ".." + e.To.String()
}
func (e *RangeExpr) Type() Type { return TypeUnknown }
func (e *RangeExpr) exprNode()  {}
