package tac

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

var (
	// ErrLoopControl break/continue 出现在循环之外
	ErrLoopControl = errors.New("break or continue outside of a loop")
	// ErrUnsupported 无法降低的 AST 构造
	ErrUnsupported = errors.New("unsupported construct")
	// ErrGlobalAccess 函数读写顶层变量。顶层代码属于 main 的局部变量，class 不生成字段
	ErrGlobalAccess = errors.New("top-level variable used inside a function")
)

// 内建函数的结果类型
var builtinResults = map[string]ast.Type{
	"println":       ast.TypeUnit,
	"print":         ast.TypeUnit,
	"intArrayOf":    ast.TypeIntArray,
	"doubleArrayOf": ast.TypeDoubleArray,
	"IntArray":      ast.TypeIntArray,
	"DoubleArray":   ast.TypeDoubleArray,
}

// IsBuiltin 是否为运行时提供的内建函数
func IsBuiltin(name string) bool {
	_, ok := builtinResults[name]
	return ok
}

// loopLabels break 跳到 end，continue 跳到 cont
type loopLabels struct {
	cont string
	end  string
}

// scope 函数体内的一层作用域
type scope struct {
	names  map[string]bool
	parent *scope
}

func (s *scope) declares(name string) bool {
	for ; s != nil; s = s.parent {
		if s.names[name] {
			return true
		}
	}
	return false
}

// Generator TAC 生成器，所有状态都在实例上
type Generator struct {
	temps   int
	labels  int
	instrs  []Instruction
	funcs   []Func
	loops   []loopLabels
	types   map[string]ast.Type
	sigs    map[string]ast.Type
	globals map[string]bool // 顶层代码声明的变量
	fn      string          // 当前函数，顶层代码为空
	scope   *scope
	line    int
}

// NewGenerator 创建生成器，临时变量和标签计数从 0 开始
func NewGenerator() *Generator {
	return &Generator{
		types:   make(map[string]ast.Type),
		sigs:    make(map[string]ast.Type),
		globals: make(map[string]bool),
	}
}

// Generate 把编译单元降低为 TAC
func Generate(file *ast.File) (*Program, error) {
	return NewGenerator().Generate(context.Background(), file)
}

// GenerateContext 同 Generate，在顶层声明之间检查 ctx
func GenerateContext(ctx context.Context, file *ast.File) (*Program, error) {
	return NewGenerator().Generate(ctx, file)
}

// Generate 生成 TAC 程序
func (g *Generator) Generate(ctx context.Context, file *ast.File) (*Program, error) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			g.sigs[d.Name] = d.Result
		case ast.Stmt:
			collectVars(d, g.globals)
		}
	}

	for _, decl := range file.Decls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch d := decl.(type) {
		case *ast.FuncDecl:
			err = g.function(d)
		case ast.Stmt:
			err = g.stmt(d)
		default:
			err = errors.Wrapf(ErrUnsupported, "top-level %T", decl)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Program{Instrs: g.instrs, Funcs: g.funcs, Types: g.types}, nil
}

// NewTemp 分配临时变量 t0, t1, ...
func (g *Generator) NewTemp(typ ast.Type) Operand {
	name := "t" + strconv.Itoa(g.temps)
	g.temps++
	g.types[name] = typ
	return Name(name, typ)
}

// NewLabel 分配标签 L0, L1, ...
func (g *Generator) NewLabel() string {
	label := "L" + strconv.Itoa(g.labels)
	g.labels++
	return label
}

func (g *Generator) emit(in Instruction) {
	in.Line = g.line
	g.instrs = append(g.instrs, in)
}

func (g *Generator) setLine(n ast.Node) {
	if line := n.Pos(); line > 0 {
		g.line = line
	}
}

// collectVars 记录语句中声明的所有变量
func collectVars(s ast.Stmt, out map[string]bool) {
	switch s := s.(type) {
	case *ast.VarDecl:
		out[s.Name] = true
	case *ast.Block:
		if s == nil {
			return
		}
		for _, st := range s.Stmts {
			collectVars(st, out)
		}
	case *ast.IfStmt:
		collectVars(s.Then, out)
		if s.Else != nil {
			collectVars(s.Else, out)
		}
	case *ast.WhileStmt:
		collectVars(s.Body, out)
	case *ast.ForStmt:
		out[s.Var] = true
		collectVars(s.Body, out)
	}
}

// declare 在当前作用域登记变量
func (g *Generator) declare(name string) {
	if g.scope != nil {
		g.scope.names[name] = true
	}
}

// pushScope 进入一层作用域，顶层代码不跟踪
func (g *Generator) pushScope() func() {
	if g.fn == "" {
		return func() {}
	}
	outer := g.scope
	g.scope = &scope{names: make(map[string]bool), parent: outer}
	return func() { g.scope = outer }
}

// resolve 检查名字没有从 main 以外的函数引用顶层变量
func (g *Generator) resolve(name string) error {
	if g.fn == "" || g.fn == "main" || g.scope.declares(name) || !g.globals[name] {
		return nil
	}
	return errors.Wrapf(ErrGlobalAccess, "%s used in function %s at line %d", name, g.fn, g.line)
}

func (g *Generator) name(name string, typ ast.Type) Operand {
	if typ == ast.TypeUnknown {
		typ = g.types[name]
	}
	return Name(name, typ)
}

// ============================================================================
// 声明与语句
// ============================================================================

func (g *Generator) function(fn *ast.FuncDecl) error {
	g.setLine(fn)
	start := len(g.instrs)
	g.emit(Instruction{Op: OpLabel, Label: FuncLabel(fn.Name)})

	g.fn = fn.Name
	defer func() { g.fn = "" }()
	pop := g.pushScope()
	defer pop()

	params := make([]Var, 0, len(fn.Params))
	for _, p := range fn.Params {
		g.types[p.Name] = p.Type
		g.declare(p.Name)
		params = append(params, Var{Name: p.Name, Type: p.Type})
	}

	if fn.Body != nil {
		if err := g.block(fn.Body); err != nil {
			return errors.Wrapf(err, "function %s", fn.Name)
		}
	}
	if fn.Name == "main" || !hasReturn(fn.Body) {
		g.emit(Instruction{Op: OpReturn})
	}

	g.funcs = append(g.funcs, Func{
		Name:   fn.Name,
		Params: params,
		Result: fn.Result,
		Start:  start,
		End:    len(g.instrs),
	})
	return nil
}

func hasReturn(n ast.Node) bool {
	switch s := n.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.Block:
		if s == nil {
			return false
		}
		for _, st := range s.Stmts {
			if hasReturn(st) {
				return true
			}
		}
	case *ast.IfStmt:
		return hasReturn(s.Then) || (s.Else != nil && hasReturn(s.Else))
	case *ast.WhileStmt:
		return hasReturn(s.Body)
	case *ast.ForStmt:
		return hasReturn(s.Body)
	}
	return false
}

func (g *Generator) block(b *ast.Block) error {
	pop := g.pushScope()
	defer pop()
	for _, s := range b.Stmts {
		if err := g.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) stmt(s ast.Stmt) error {
	g.setLine(s)
	switch s := s.(type) {
	case *ast.Block:
		return g.block(s)
	case *ast.VarDecl:
		g.types[s.Name] = s.Type
		if s.Init == nil {
			g.declare(s.Name)
			return nil
		}
		v, err := g.expr(s.Init)
		if err != nil {
			return err
		}
		g.declare(s.Name)
		g.emit(Instruction{Op: OpAssign, Arg1: v, Result: Name(s.Name, s.Type)})
		return nil
	case *ast.AssignStmt:
		return g.assign(s)
	case *ast.IfStmt:
		return g.ifStmt(s)
	case *ast.WhileStmt:
		return g.whileStmt(s)
	case *ast.ForStmt:
		return g.forStmt(s)
	case *ast.ReturnStmt:
		if s.Value == nil {
			g.emit(Instruction{Op: OpReturn})
			return nil
		}
		v, err := g.expr(s.Value)
		if err != nil {
			return err
		}
		g.emit(Instruction{Op: OpReturn, Arg1: v})
		return nil
	case *ast.BreakStmt:
		if len(g.loops) == 0 {
			return errors.Wrapf(ErrLoopControl, "break at line %d", s.Line)
		}
		g.emit(Instruction{Op: OpGoto, Label: g.loops[len(g.loops)-1].end})
		return nil
	case *ast.ContinueStmt:
		if len(g.loops) == 0 {
			return errors.Wrapf(ErrLoopControl, "continue at line %d", s.Line)
		}
		g.emit(Instruction{Op: OpGoto, Label: g.loops[len(g.loops)-1].cont})
		return nil
	case *ast.ExprStmt:
		_, err := g.expr(s.X)
		return err
	}
	return errors.Wrapf(ErrUnsupported, "statement %T", s)
}

func (g *Generator) assign(s *ast.AssignStmt) error {
	switch target := s.Target.(type) {
	case *ast.Ident:
		if err := g.resolve(target.Name); err != nil {
			return err
		}
		v, err := g.expr(s.Value)
		if err != nil {
			return err
		}
		g.emit(Instruction{Op: OpAssign, Arg1: v, Result: g.name(target.Name, target.Typ)})
		return nil
	case *ast.IndexExpr:
		arr, err := g.arrayBase(target.X)
		if err != nil {
			return err
		}
		idx, err := g.expr(target.Index)
		if err != nil {
			return err
		}
		v, err := g.expr(s.Value)
		if err != nil {
			return err
		}
		g.emit(Instruction{Op: OpArrayStore, Arg1: idx, Arg2: v, Result: arr})
		return nil
	}
	return errors.Wrapf(ErrUnsupported, "assignment to %T", s.Target)
}

func (g *Generator) ifStmt(s *ast.IfStmt) error {
	cond, err := g.expr(s.Cond)
	if err != nil {
		return err
	}
	elseLabel := g.NewLabel()
	endLabel := g.NewLabel()

	g.emit(Instruction{Op: OpIfFalse, Arg1: cond, Label: elseLabel})
	if err := g.block(s.Then); err != nil {
		return err
	}
	if s.Else == nil {
		g.emit(Instruction{Op: OpLabel, Label: elseLabel})
		return nil
	}
	g.emit(Instruction{Op: OpGoto, Label: endLabel})
	g.emit(Instruction{Op: OpLabel, Label: elseLabel})
	if err := g.block(s.Else); err != nil {
		return err
	}
	g.emit(Instruction{Op: OpLabel, Label: endLabel})
	return nil
}

func (g *Generator) whileStmt(s *ast.WhileStmt) error {
	start := g.NewLabel()
	end := g.NewLabel()

	g.emit(Instruction{Op: OpLabel, Label: start})
	cond, err := g.expr(s.Cond)
	if err != nil {
		return err
	}
	g.emit(Instruction{Op: OpIfFalse, Arg1: cond, Label: end})

	g.loops = append(g.loops, loopLabels{cont: start, end: end})
	err = g.block(s.Body)
	g.loops = g.loops[:len(g.loops)-1]
	if err != nil {
		return err
	}

	g.emit(Instruction{Op: OpGoto, Label: start})
	g.emit(Instruction{Op: OpLabel, Label: end})
	return nil
}

func (g *Generator) forStmt(s *ast.ForStmt) error {
	from, err := g.expr(s.Range.From)
	if err != nil {
		return err
	}
	to, err := g.expr(s.Range.To)
	if err != nil {
		return err
	}
	start := g.NewLabel()
	cont := g.NewLabel()
	end := g.NewLabel()

	pop := g.pushScope()
	defer pop()
	g.declare(s.Var)
	g.types[s.Var] = ast.TypeInt
	v := Name(s.Var, ast.TypeInt)
	g.emit(Instruction{Op: OpAssign, Arg1: from, Result: v})
	g.emit(Instruction{Op: OpLabel, Label: start})

	cmp := OpLe
	if s.Range.Until {
		cmp = OpLt
	}
	cond := g.NewTemp(ast.TypeBoolean)
	g.emit(Instruction{Op: cmp, Arg1: v, Arg2: to, Result: cond})
	g.emit(Instruction{Op: OpIfFalse, Arg1: cond, Label: end})

	g.loops = append(g.loops, loopLabels{cont: cont, end: end})
	err = g.block(s.Body)
	g.loops = g.loops[:len(g.loops)-1]
	if err != nil {
		return err
	}

	g.emit(Instruction{Op: OpLabel, Label: cont})
	next := g.NewTemp(ast.TypeInt)
	g.emit(Instruction{Op: OpAdd, Arg1: v, Arg2: IntLit(1), Result: next})
	g.emit(Instruction{Op: OpAssign, Arg1: next, Result: v})
	g.emit(Instruction{Op: OpGoto, Label: start})
	g.emit(Instruction{Op: OpLabel, Label: end})
	return nil
}

// ============================================================================
// 表达式
// ============================================================================

// expr 生成表达式代码，返回保存结果的操作数
func (g *Generator) expr(e ast.Expr) (Operand, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return IntLit(e.Value), nil
	case *ast.DoubleLit:
		return DoubleLit(e.Value), nil
	case *ast.StringLit:
		return StringLit(e.Value), nil
	case *ast.BoolLit:
		return BoolLit(e.Value), nil
	case *ast.Ident:
		if err := g.resolve(e.Name); err != nil {
			return None, err
		}
		return g.name(e.Name, e.Typ), nil
	case *ast.BinaryExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			return None, errors.Wrapf(ErrUnsupported, "binary operator %q", e.Op)
		}
		x, err := g.expr(e.X)
		if err != nil {
			return None, err
		}
		y, err := g.expr(e.Y)
		if err != nil {
			return None, err
		}
		typ := e.Typ
		if typ == ast.TypeUnknown {
			typ = ast.BinaryResult(e.Op, x.Type, y.Type)
		}
		r := g.NewTemp(typ)
		g.emit(Instruction{Op: op, Arg1: x, Arg2: y, Result: r})
		return r, nil
	case *ast.UnaryExpr:
		x, err := g.expr(e.X)
		if err != nil {
			return None, err
		}
		switch e.Op {
		case "!":
			r := g.NewTemp(ast.TypeBoolean)
			g.emit(Instruction{Op: OpNot, Arg1: x, Result: r})
			return r, nil
		case "-":
			typ := e.Typ
			if typ == ast.TypeUnknown {
				typ = x.Type
			}
			r := g.NewTemp(typ)
			g.emit(Instruction{Op: OpNeg, Arg1: x, Result: r})
			return r, nil
		}
		return None, errors.Wrapf(ErrUnsupported, "unary operator %q", e.Op)
	case *ast.CallExpr:
		return g.call(e)
	case *ast.IndexExpr:
		arr, err := g.arrayBase(e.X)
		if err != nil {
			return None, err
		}
		idx, err := g.expr(e.Index)
		if err != nil {
			return None, err
		}
		typ := e.Typ
		if typ == ast.TypeUnknown {
			typ = arr.Type.Elem()
		}
		r := g.NewTemp(typ)
		g.emit(Instruction{Op: OpArrayLoad, Arg1: arr, Arg2: idx, Result: r})
		return r, nil
	case *ast.PropertyExpr:
		if e.Name != "size" && e.Name != "length" {
			return None, errors.Wrapf(ErrUnsupported, "property %q", e.Name)
		}
		obj, err := g.expr(e.X)
		if err != nil {
			return None, err
		}
		if obj.Kind != KindName {
			return None, errors.Wrapf(ErrUnsupported, "property %q of a literal", e.Name)
		}
		r := g.NewTemp(ast.TypeInt)
		g.emit(Instruction{Op: OpAssign, Arg1: Name(obj.Text+"."+e.Name, ast.TypeInt), Result: r})
		return r, nil
	}
	return None, errors.Wrapf(ErrUnsupported, "expression %T", e)
}

func (g *Generator) arrayBase(x ast.Expr) (Operand, error) {
	if id, ok := x.(*ast.Ident); ok {
		if err := g.resolve(id.Name); err != nil {
			return None, err
		}
		return g.name(id.Name, id.Typ), nil
	}
	return g.expr(x)
}

func (g *Generator) call(e *ast.CallExpr) (Operand, error) {
	args := make([]Operand, 0, len(e.Args))
	for _, a := range e.Args {
		v, err := g.expr(a)
		if err != nil {
			return None, err
		}
		args = append(args, v)
	}
	for _, a := range args {
		g.emit(Instruction{Op: OpParam, Arg1: a})
	}

	typ := e.Typ
	if typ == ast.TypeUnknown {
		if t, ok := builtinResults[e.Func]; ok {
			typ = t
		} else if t, ok := g.sigs[e.Func]; ok {
			typ = t
		} else {
			typ = ast.TypeInt
		}
	}
	r := g.NewTemp(typ)
	g.emit(Instruction{
		Op:     OpCall,
		Arg1:   Name(e.Func, ast.TypeUnknown),
		Arg2:   Operand{Kind: KindLiteral, Text: strconv.Itoa(len(args)), Type: ast.TypeInt},
		Result: r,
	})
	return r, nil
}

// CallArgs 解析 CALL 指令的参数个数
func CallArgs(in Instruction) (int, error) {
	if in.Op != OpCall {
		return 0, fmt.Errorf("not a CALL: %s", in)
	}
	return strconv.Atoi(in.Arg2.Text)
}
