package ast

// ============================================================================
// AST 节点工厂函数
// ============================================================================
//
// 测试和工具代码用这些函数手工构造 AST，省去逐字段初始化。
// 表达式的结果类型在未显式给出时按 BinaryResult 推导。
//
// ============================================================================

// NewInt 创建整数字面量
func NewInt(v int64) *IntLit { return &IntLit{Value: v} }

// NewDouble 创建浮点字面量
func NewDouble(v float64) *DoubleLit { return &DoubleLit{Value: v} }

// NewString 创建字符串字面量
func NewString(v string) *StringLit { return &StringLit{Value: v} }

// NewBool 创建布尔字面量
func NewBool(v bool) *BoolLit { return &BoolLit{Value: v} }

// NewIdent 创建标识符
func NewIdent(name string, typ Type) *Ident { return &Ident{Name: name, Typ: typ} }

// NewBinary 创建二元表达式
func NewBinary(op string, x, y Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, X: x, Y: y, Typ: BinaryResult(op, x.Type(), y.Type())}
}

// NewUnary 创建一元表达式
func NewUnary(op string, x Expr) *UnaryExpr {
	typ := x.Type()
	if op == "!" {
		typ = TypeBoolean
	}
	return &UnaryExpr{Op: op, X: x, Typ: typ}
}

// NewCall 创建函数调用
func NewCall(fn string, result Type, args ...Expr) *CallExpr {
	return &CallExpr{Func: fn, Args: args, Typ: result}
}

// NewIndex 创建下标访问
func NewIndex(x, index Expr) *IndexExpr {
	return &IndexExpr{X: x, Index: index, Typ: x.Type().Elem()}
}

// NewProperty 创建属性访问
func NewProperty(x Expr, name string) *PropertyExpr {
	return &PropertyExpr{X: x, Name: name}
}

// NewRange 创建区间
func NewRange(from, to Expr, until bool) *RangeExpr {
	return &RangeExpr{From: from, To: to, Until: until}
}

// NewBlock 创建语句块
func NewBlock(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

// NewVar 创建 var 声明
func NewVar(name string, typ Type, init Expr) *VarDecl {
	return &VarDecl{Name: name, Type: typ, Mutable: true, Init: init}
}

// NewVal 创建 val 声明
func NewVal(name string, typ Type, init Expr) *VarDecl {
	return &VarDecl{Name: name, Type: typ, Init: init}
}

// NewAssign 创建赋值语句
func NewAssign(target, value Expr) *AssignStmt {
	return &AssignStmt{Target: target, Value: value}
}

// NewIf 创建 if 语句，els 可为 nil
func NewIf(cond Expr, then, els *Block) *IfStmt {
	return &IfStmt{Cond: cond, Then: then, Else: els}
}

// NewWhile 创建 while 循环
func NewWhile(cond Expr, body *Block) *WhileStmt {
	return &WhileStmt{Cond: cond, Body: body}
}

// NewFor 创建 for 循环
func NewFor(v string, rng *RangeExpr, body *Block) *ForStmt {
	return &ForStmt{Var: v, Range: rng, Body: body}
}

// NewReturn 创建 return 语句
func NewReturn(value Expr) *ReturnStmt { return &ReturnStmt{Value: value} }

// NewExprStmt 创建表达式语句
func NewExprStmt(x Expr) *ExprStmt { return &ExprStmt{X: x} }

// NewFunc 创建函数声明
func NewFunc(name string, params []*Param, result Type, body *Block) *FuncDecl {
	return &FuncDecl{Name: name, Params: params, Result: result, Body: body}
}

// NewMain 创建无参 main 函数
func NewMain(stmts ...Stmt) *FuncDecl {
	return NewFunc("main", nil, TypeUnit, NewBlock(stmts...))
}

// NewFile 创建编译单元
func NewFile(decls ...Node) *File { return &File{Decls: decls} }
