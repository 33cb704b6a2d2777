package jvmgen

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/tac"
)

// MethodConfig 单个方法的编译参数
type MethodConfig struct {
	Class  string              // 当前类的内部名称，用户函数调用的目标
	Name   string              // 方法名
	Params []tac.Var           // 参数，按顺序占用槽位
	Result ast.Type            // 返回类型
	Main   bool                // main 方法：槽位 0 是 args，RETURN 不带值
	Funcs  map[string]tac.Func // 可调用的用户函数
	Types  map[string]ast.Type // 名字的类型表
}

// CodeResult 方法体生成结果
type CodeResult struct {
	Code      []byte
	MaxStack  int
	MaxLocals int
	Instrs    []Instruction // 已解析跳转偏移的指令
	PCs       []int         // PCs[i] 是 Instrs[i] 的偏移，最后一项是代码长度
	Lines     []LineNumber
	Locals    []Local
}

type lineMark struct {
	index int // 对应 code 中的下标
	line  int
}

// Generator 两遍 JVM 代码生成器。第一遍把 TAC 翻译为指令并登记标签，
// 第二遍计算偏移、解析跳转并编码
type Generator struct {
	pool   *ConstantPool
	rt     *Runtime
	cfg    MethodConfig
	locals *LocalVariableManager
	stack  StackDepthTracker
	code   []Instruction
	labels map[string]int
	marks  []lineMark
	params []tac.Operand
	uses   map[string]int
	synth  int

	// 可达代码中跳转到各标签时的栈深度；dead 表示当前位置不可达
	targets map[string]int
	dead    bool
}

// NewGenerator 创建方法生成器并为参数分配槽位
func NewGenerator(pool *ConstantPool, cfg MethodConfig) (*Generator, error) {
	g := &Generator{
		pool:    pool,
		rt:      NewRuntime(pool),
		cfg:     cfg,
		locals:  NewLocalVariableManager(),
		labels:  make(map[string]int),
		uses:    make(map[string]int),
		targets: make(map[string]int),
	}
	if cfg.Main {
		if _, err := g.locals.Reserve("$args", "args", "[Ljava/lang/String;"); err != nil {
			return nil, err
		}
	}
	for _, p := range cfg.Params {
		if _, err := g.locals.Param(p.Name, p.Type); err != nil {
			return nil, errors.Wrapf(err, "parameter %s", p.Name)
		}
	}
	return g, nil
}

// GenerateMethod 翻译整个方法体
func (g *Generator) GenerateMethod(instrs []tac.Instruction) (*CodeResult, error) {
	g.uses = countUses(instrs)
	for i := 0; i < len(instrs); i++ {
		in := instrs[i]
		g.mark(in, i)
		if i+1 < len(instrs) && g.fusible(in, instrs[i+1]) {
			if err := g.branchIfFalse(in, instrs[i+1].Label); err != nil {
				return nil, errors.Wrapf(err, "instruction %d (%s)", i, in)
			}
			i++
			continue
		}
		if err := g.Emit(in); err != nil {
			return nil, errors.Wrapf(err, "instruction %d (%s)", i, in)
		}
	}
	return g.Finish()
}

func (g *Generator) mark(in tac.Instruction, i int) {
	line := in.Line
	if line <= 0 {
		line = i + 1
	}
	g.marks = append(g.marks, lineMark{index: len(g.code), line: line})
}

// countUses 每个名字作为操作数被读取的次数
func countUses(instrs []tac.Instruction) map[string]int {
	uses := make(map[string]int)
	for _, in := range instrs {
		if in.Op != tac.OpCall && in.Arg1.IsName() {
			uses[in.Arg1.Text]++
		}
		if in.Arg2.IsName() {
			uses[in.Arg2.Text]++
		}
		if in.Op == tac.OpArrayStore && in.Result.IsName() {
			uses[in.Result.Text]++
		}
	}
	return uses
}

// fusible 比较结果只被紧随其后的 IF_FALSE 使用时，直接生成条件跳转
func (g *Generator) fusible(cmp, next tac.Instruction) bool {
	return cmp.Op.IsComparison() &&
		next.Op == tac.OpIfFalse &&
		next.Arg1.IsName() &&
		next.Arg1.Text == cmp.Result.Text &&
		g.uses[cmp.Result.Text] == 1
}

// ============================================================================
// 第一遍：逐条翻译
// ============================================================================

// emit 追加一条指令。不可达的指令不计入栈深度，max_stack 与控制流重放的结果一致
func (g *Generator) emit(in Instruction) error {
	pop, push, err := StackEffect(in, g.pool)
	if err != nil {
		return err
	}
	g.code = append(g.code, in)
	if g.dead {
		return nil
	}
	g.stack.Pop(pop)
	g.stack.Push(push)
	if in.Op.IsBranch() && in.Label != "" {
		if _, seen := g.targets[in.Label]; !seen {
			g.targets[in.Label] = g.stack.Depth()
		}
	}
	g.dead = in.Op.EndsBlock()
	return nil
}

func (g *Generator) emitAll(ins ...Instruction) error {
	for _, in := range ins {
		if err := g.emit(in); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) bind(label string) error {
	if _, dup := g.labels[label]; dup {
		return errors.Wrapf(ErrDuplicateLabel, "%s", label)
	}
	g.labels[label] = len(g.code)
	if depth, ok := g.targets[label]; ok && g.dead {
		g.dead = false
		g.stack.Reset(depth)
	}
	return nil
}

// newLabel 生成器内部标签，$ 前缀不会与 TAC 标签冲突
func (g *Generator) newLabel(kind string) string {
	l := fmt.Sprintf("$%s%d", kind, g.synth)
	g.synth++
	return l
}

// Emit 翻译一条 TAC 指令
func (g *Generator) Emit(in tac.Instruction) error {
	switch {
	case in.Op == tac.OpLabel:
		return g.bind(in.Label)
	case in.Op == tac.OpAssign:
		t := g.declaredType(in.Result)
		if t == ast.TypeUnknown || t == ast.TypeUnit {
			t = g.typeOf(in.Arg1)
		}
		if err := g.loadAs(in.Arg1, t); err != nil {
			return err
		}
		return g.store(in.Result, t)
	case in.Op.IsArithmetic():
		return g.arithmetic(in)
	case in.Op.IsComparison():
		return g.compareValue(in)
	case in.Op == tac.OpAnd || in.Op == tac.OpOr:
		if err := g.loadAs(in.Arg1, ast.TypeBoolean); err != nil {
			return err
		}
		if err := g.loadAs(in.Arg2, ast.TypeBoolean); err != nil {
			return err
		}
		op := OpIand
		if in.Op == tac.OpOr {
			op = OpIor
		}
		if err := g.emit(Simple(op)); err != nil {
			return err
		}
		return g.store(in.Result, ast.TypeBoolean)
	case in.Op == tac.OpNot:
		if err := g.loadAs(in.Arg1, ast.TypeBoolean); err != nil {
			return err
		}
		if err := g.emitAll(Simple(OpIconst1), Simple(OpIxor)); err != nil {
			return err
		}
		return g.store(in.Result, ast.TypeBoolean)
	case in.Op == tac.OpNeg:
		t := g.declaredType(in.Result)
		if t == ast.TypeUnknown {
			t = g.typeOf(in.Arg1)
		}
		if err := g.loadAs(in.Arg1, t); err != nil {
			return err
		}
		op := OpIneg
		if t == ast.TypeDouble {
			op = OpDneg
		}
		if err := g.emit(Simple(op)); err != nil {
			return err
		}
		return g.store(in.Result, t)
	case in.Op == tac.OpGoto:
		return g.emit(Branch(OpGoto, in.Label))
	case in.Op == tac.OpIfFalse:
		if err := g.loadAs(in.Arg1, ast.TypeBoolean); err != nil {
			return err
		}
		return g.emit(Branch(OpIfeq, in.Label))
	case in.Op == tac.OpParam:
		g.params = append(g.params, in.Arg1)
		return nil
	case in.Op == tac.OpCall:
		return g.call(in)
	case in.Op == tac.OpReturn:
		return g.ret(in)
	case in.Op == tac.OpArrayLoad:
		return g.arrayLoad(in)
	case in.Op == tac.OpArrayStore:
		return g.arrayStore(in)
	}
	return errors.Wrapf(ErrUnsupportedOp, "TAC %s", in.Op)
}

// ============================================================================
// 类型
// ============================================================================

// knownType 操作数的类型，查不到返回 TypeUnknown
func (g *Generator) knownType(o tac.Operand) ast.Type {
	if o.IsName() {
		if _, _, ok := o.Property(); ok {
			return ast.TypeInt
		}
		if l, ok := g.locals.Resolve(o.Text, o.Type); ok && l.Type != ast.TypeUnknown {
			return l.Type
		}
	}
	if o.Type != ast.TypeUnknown || o.IsLiteral() {
		return o.Type
	}
	return g.cfg.Types[o.Text]
}

// declaredType 赋值目标的类型：操作数自带的类型优先，其次是已有的同名变量
func (g *Generator) declaredType(o tac.Operand) ast.Type {
	if _, _, ok := o.Property(); ok {
		return ast.TypeInt
	}
	if o.Type != ast.TypeUnknown {
		return o.Type
	}
	if l, ok := g.locals.Lookup(o.Text); ok && l.Type != ast.TypeUnknown {
		return l.Type
	}
	return g.cfg.Types[o.Text]
}

// typeOf 未知类型按 Int 处理
func (g *Generator) typeOf(o tac.Operand) ast.Type {
	if t := g.knownType(o); t != ast.TypeUnknown {
		return t
	}
	return ast.TypeInt
}

// intLike 占一个槽位的非引用值
func intLike(t ast.Type) bool {
	return !t.IsWide() && !t.IsReference()
}

// ============================================================================
// 加载与存储
// ============================================================================

// load 把操作数压栈，返回压入值的类型
func (g *Generator) load(o tac.Operand) (ast.Type, error) {
	switch o.Kind {
	case tac.KindLiteral:
		return g.loadLiteral(o)
	case tac.KindName:
		if obj, prop, ok := o.Property(); ok {
			return ast.TypeInt, g.loadProperty(obj, prop)
		}
		l, ok := g.locals.Resolve(o.Text, o.Type)
		if !ok {
			return 0, errors.Wrapf(ErrUndefinedVariable, "%s", o.Text)
		}
		t := l.Type
		if l.Desc != "" {
			t = ast.TypeString // 保留槽位都是引用
		}
		in, err := LoadLocal(t, l.Slot)
		if err != nil {
			return 0, err
		}
		if err := g.emit(in); err != nil {
			return 0, err
		}
		g.locals.Touch(l.Key, l.Type, len(g.code)-1, false)
		return l.Type, nil
	}
	return 0, errors.Wrapf(ErrBadOperand, "cannot load %q", o.Text)
}

// loadLiteral 字面量的类型由操作数给出，不从文本猜测
func (g *Generator) loadLiteral(o tac.Operand) (ast.Type, error) {
	t := o.Type
	switch t {
	case ast.TypeUnknown:
		return 0, errors.Wrapf(ErrBadOperand, "untyped literal %s", o.Text)
	case ast.TypeBoolean:
		b, err := o.Bool()
		if err != nil {
			return 0, errors.Wrapf(ErrBadOperand, "boolean literal %q", o.Text)
		}
		if b {
			return t, g.emit(Simple(OpIconst1))
		}
		return t, g.emit(Simple(OpIconst0))
	case ast.TypeDouble:
		v, err := o.Float()
		if err != nil {
			return 0, errors.Wrapf(ErrBadOperand, "double literal %q", o.Text)
		}
		return t, g.emit(PushDouble(g.pool, v))
	case ast.TypeString:
		s, err := o.Str()
		if err != nil {
			return 0, errors.Wrapf(ErrBadOperand, "string literal %s", o.Text)
		}
		return t, g.emit(g.rt.LoadString(s))
	case ast.TypeInt:
		v, err := intLiteral(o)
		if err != nil {
			return 0, err
		}
		return t, g.emit(PushInt(g.pool, v))
	}
	return 0, errors.Wrapf(ErrBadOperand, "%s literal %s", t, o.Text)
}

func intLiteral(o tac.Operand) (int32, error) {
	v, err := o.Int()
	if err != nil || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrBadOperand, "int literal %q", o.Text)
	}
	return int32(v), nil
}

// loadProperty arr.size 和 s.length
func (g *Generator) loadProperty(obj, prop string) error {
	l, ok := g.locals.Lookup(obj)
	if !ok {
		return errors.Wrapf(ErrUndefinedVariable, "%s", obj)
	}
	var tail Instruction
	switch {
	case l.Type.IsArray() && prop == "size":
		tail = Simple(OpArraylength)
	case l.Type == ast.TypeString && prop == "length":
		tail = g.rt.Length()
	default:
		return errors.Wrapf(ErrUnsupportedOp, "property %s.%s of %s", obj, prop, l.Type)
	}
	in, err := LoadLocal(l.Type, l.Slot)
	if err != nil {
		return err
	}
	if err := g.emit(in); err != nil {
		return err
	}
	g.locals.Touch(l.Key, l.Type, len(g.code)-1, false)
	return g.emit(tail)
}

// loadAs 加载并转换为 want
func (g *Generator) loadAs(o tac.Operand, want ast.Type) error {
	if o.IsLiteral() && want == ast.TypeDouble && o.Type == ast.TypeInt {
		v, err := intLiteral(o)
		if err != nil {
			return err
		}
		return g.emit(PushDouble(g.pool, float64(v)))
	}
	have, err := g.load(o)
	if err != nil {
		return err
	}
	return g.convert(have, want)
}

// convert 栈顶值从 have 转换为 want
func (g *Generator) convert(have, want ast.Type) error {
	switch {
	case want == ast.TypeDouble && intLike(have):
		return g.emit(Simple(OpI2d))
	case intLike(want) && want != ast.TypeUnit && have == ast.TypeDouble:
		return g.emit(Simple(OpD2i))
	case want == ast.TypeString && have != ast.TypeString:
		return g.emit(g.rt.ValueOf(have))
	}
	return nil
}

// store 栈顶值存入名字，第一次出现时分配槽位
func (g *Generator) store(o tac.Operand, have ast.Type) error {
	if !o.IsName() {
		return errors.Wrapf(ErrBadOperand, "cannot assign to %q", o.Text)
	}
	if _, _, ok := o.Property(); ok {
		return errors.Wrapf(ErrBadOperand, "cannot assign to property %s", o.Text)
	}
	want := g.declaredType(o)
	if want == ast.TypeUnknown || want == ast.TypeUnit {
		want = have
	}
	if err := g.convert(have, want); err != nil {
		return err
	}
	slot, err := g.locals.Allocate(o.Text, want)
	if err != nil {
		return err
	}
	in, err := StoreLocal(want, slot)
	if err != nil {
		return err
	}
	if err := g.emit(in); err != nil {
		return err
	}
	g.locals.Touch(o.Text, want, len(g.code)-1, true)
	return nil
}

// ============================================================================
// 运算
// ============================================================================

var arithOps = map[tac.Op][2]Opcode{
	tac.OpAdd: {OpIadd, OpDadd},
	tac.OpSub: {OpIsub, OpDsub},
	tac.OpMul: {OpImul, OpDmul},
	tac.OpDiv: {OpIdiv, OpDdiv},
	tac.OpMod: {OpIrem, OpDrem},
}

func (g *Generator) arithmetic(in tac.Instruction) error {
	rt := g.declaredType(in.Result)
	if rt == ast.TypeUnknown {
		rt = ast.BinaryResult(in.Op.Symbol(), g.typeOf(in.Arg1), g.typeOf(in.Arg2))
	}

	switch rt {
	case ast.TypeString:
		if in.Op != tac.OpAdd {
			return errors.Wrapf(ErrUnsupportedOp, "string %s", in.Op)
		}
		if err := g.loadAs(in.Arg1, ast.TypeString); err != nil {
			return err
		}
		if err := g.loadAs(in.Arg2, ast.TypeString); err != nil {
			return err
		}
		if err := g.emit(g.rt.Concat()); err != nil {
			return err
		}
		return g.store(in.Result, ast.TypeString)
	case ast.TypeDouble:
	default:
		rt = ast.TypeInt
	}

	if err := g.loadAs(in.Arg1, rt); err != nil {
		return err
	}
	if err := g.loadAs(in.Arg2, rt); err != nil {
		return err
	}
	ops := arithOps[in.Op]
	op := ops[0]
	if rt == ast.TypeDouble {
		op = ops[1]
	}
	if err := g.emit(Simple(op)); err != nil {
		return err
	}
	return g.store(in.Result, rt)
}

// 比较成立时跳转的指令
var (
	icmpBranch = map[tac.Op]Opcode{
		tac.OpLt: OpIfIcmplt, tac.OpGt: OpIfIcmpgt, tac.OpLe: OpIfIcmple,
		tac.OpGe: OpIfIcmpge, tac.OpEq: OpIfIcmpeq, tac.OpNe: OpIfIcmpne,
	}
	zeroBranch = map[tac.Op]Opcode{
		tac.OpLt: OpIflt, tac.OpGt: OpIfgt, tac.OpLe: OpIfle,
		tac.OpGe: OpIfge, tac.OpEq: OpIfeq, tac.OpNe: OpIfne,
	}
)

// condition 加载比较的两个操作数，返回比较成立时跳转的指令
func (g *Generator) condition(in tac.Instruction) (Opcode, error) {
	ta, tb := g.typeOf(in.Arg1), g.typeOf(in.Arg2)
	switch {
	case ta == ast.TypeString || tb == ast.TypeString:
		if err := g.loadAs(in.Arg1, ast.TypeString); err != nil {
			return 0, err
		}
		if err := g.loadAs(in.Arg2, ast.TypeString); err != nil {
			return 0, err
		}
		switch in.Op {
		case tac.OpEq:
			return OpIfne, g.emit(g.rt.Equals())
		case tac.OpNe:
			return OpIfeq, g.emit(g.rt.Equals())
		}
		return zeroBranch[in.Op], g.emit(g.rt.CompareTo())

	case ta == ast.TypeDouble || tb == ast.TypeDouble:
		if err := g.loadAs(in.Arg1, ast.TypeDouble); err != nil {
			return 0, err
		}
		if err := g.loadAs(in.Arg2, ast.TypeDouble); err != nil {
			return 0, err
		}
		// NaN 时 < 和 <= 需要 dcmpg 得到 1，其余用 dcmpl 得到 -1，比较都不成立
		cmp := OpDcmpl
		if in.Op == tac.OpLt || in.Op == tac.OpLe {
			cmp = OpDcmpg
		}
		return zeroBranch[in.Op], g.emit(Simple(cmp))

	case ta.IsReference() || tb.IsReference():
		if _, err := g.load(in.Arg1); err != nil {
			return 0, err
		}
		if _, err := g.load(in.Arg2); err != nil {
			return 0, err
		}
		switch in.Op {
		case tac.OpEq:
			return OpIfAcmpeq, nil
		case tac.OpNe:
			return OpIfAcmpne, nil
		}
		return 0, errors.Wrapf(ErrUnsupportedOp, "%s on %s", in.Op, ta)
	}

	if err := g.loadAs(in.Arg1, ast.TypeInt); err != nil {
		return 0, err
	}
	if err := g.loadAs(in.Arg2, ast.TypeInt); err != nil {
		return 0, err
	}
	return icmpBranch[in.Op], nil
}

// compareValue 比较结果作为值：成立压 1，否则压 0
func (g *Generator) compareValue(in tac.Instruction) error {
	br, err := g.condition(in)
	if err != nil {
		return err
	}
	onTrue, end := g.newLabel("cmp_true"), g.newLabel("cmp_end")
	if err := g.emit(Branch(br, onTrue)); err != nil {
		return err
	}
	depth := g.stack.Depth()
	if err := g.emitAll(Simple(OpIconst0), Branch(OpGoto, end)); err != nil {
		return err
	}
	if err := g.bind(onTrue); err != nil {
		return err
	}
	g.stack.Reset(depth)
	if err := g.emit(Simple(OpIconst1)); err != nil {
		return err
	}
	if err := g.bind(end); err != nil {
		return err
	}
	return g.store(in.Result, ast.TypeBoolean)
}

// branchIfFalse 比较与 IF_FALSE 合并：比较不成立时跳到 label
func (g *Generator) branchIfFalse(in tac.Instruction, label string) error {
	br, err := g.condition(in)
	if err != nil {
		return err
	}
	neg, ok := br.Negate()
	if !ok {
		return errors.Wrapf(ErrUnsupportedOp, "cannot negate %s", br)
	}
	return g.emit(Branch(neg, label))
}

// ============================================================================
// 调用与返回
// ============================================================================

func (g *Generator) call(in tac.Instruction) error {
	n, err := tac.CallArgs(in)
	if err != nil {
		return errors.Wrapf(ErrBadOperand, "argument count %q", in.Arg2.Text)
	}
	if n < 0 || n > len(g.params) {
		return errors.Wrapf(ErrBadOperand, "CALL %s needs %d arguments, %d pending", in.Arg1.Text, n, len(g.params))
	}
	args := append([]tac.Operand(nil), g.params[len(g.params)-n:]...)
	g.params = g.params[:len(g.params)-n]

	name := in.Arg1.Text
	switch name {
	case "println", "print":
		return g.print(name, args)
	case "intArrayOf":
		return g.arrayOf(ast.TypeInt, args, in.Result)
	case "doubleArrayOf":
		return g.arrayOf(ast.TypeDouble, args, in.Result)
	case "IntArray":
		return g.newArray(ast.TypeInt, args, in.Result)
	case "DoubleArray":
		return g.newArray(ast.TypeDouble, args, in.Result)
	}

	fn, ok := g.cfg.Funcs[name]
	if !ok {
		return errors.Wrapf(ErrUndefinedFunction, "%s", name)
	}
	if len(args) != len(fn.Params) {
		return errors.Wrapf(ErrBadOperand, "%s takes %d arguments, got %d", name, len(fn.Params), len(args))
	}
	types := make([]ast.Type, len(fn.Params))
	for i, p := range fn.Params {
		if err := g.loadAs(args[i], p.Type); err != nil {
			return err
		}
		types[i] = p.Type
	}
	if err := g.emit(g.rt.InvokeStatic(g.cfg.Class, name, MethodDescriptor(types, fn.Result))); err != nil {
		return err
	}
	return g.result(in.Result, fn.Result)
}

// result 处理调用结果：无返回值忽略，没有接收者时弹出
func (g *Generator) result(res tac.Operand, t ast.Type) error {
	switch {
	case t == ast.TypeUnit:
		return nil
	case res.IsNone() && t.IsWide():
		return g.emit(Simple(OpPop2))
	case res.IsNone():
		return g.emit(Simple(OpPop))
	}
	return g.store(res, t)
}

func (g *Generator) print(name string, args []tac.Operand) error {
	switch len(args) {
	case 0:
		if name == "print" {
			return errors.Wrap(ErrBadOperand, "print needs an argument")
		}
		return g.emitAll(g.rt.PrintNewline()...)
	case 1:
		t, err := g.load(args[0])
		if err != nil {
			return err
		}
		seq, err := g.rt.Print(name, t)
		if err != nil {
			return err
		}
		return g.emitAll(seq...)
	}
	return errors.Wrapf(ErrBadOperand, "%s takes at most one argument", name)
}

func (g *Generator) arrayOf(elem ast.Type, args []tac.Operand, res tac.Operand) error {
	err := g.rt.ArrayLiteral(elem, len(args), g.emit, func(i int) error {
		return g.loadAs(args[i], elem)
	})
	if err != nil {
		return err
	}
	return g.result(res, ast.ArrayOf(elem))
}

func (g *Generator) newArray(elem ast.Type, args []tac.Operand, res tac.Operand) error {
	if len(args) != 1 {
		return errors.Wrapf(ErrBadOperand, "array constructor takes one argument, got %d", len(args))
	}
	if err := g.loadAs(args[0], ast.TypeInt); err != nil {
		return err
	}
	if err := g.emit(g.rt.NewArray(elem)); err != nil {
		return err
	}
	return g.result(res, ast.ArrayOf(elem))
}

func (g *Generator) ret(in tac.Instruction) error {
	if g.cfg.Main || g.cfg.Result == ast.TypeUnit {
		return g.emit(Simple(OpReturn))
	}
	if in.Arg1.IsNone() {
		if err := g.emit(DefaultValue(g.cfg.Result)); err != nil {
			return err
		}
	} else if err := g.loadAs(in.Arg1, g.cfg.Result); err != nil {
		return err
	}
	return g.emit(Simple(ReturnFor(g.cfg.Result)))
}

// ============================================================================
// 数组
// ============================================================================

// arrayType 数组操作数的类型，未知时按 IntArray 处理
func (g *Generator) arrayType(o tac.Operand) (ast.Type, error) {
	t := g.knownType(o)
	switch {
	case t == ast.TypeUnknown:
		return ast.TypeIntArray, nil
	case !t.IsArray():
		return 0, errors.Wrapf(ErrBadOperand, "%s is %s, not an array", o.Text, t)
	}
	return t, nil
}

func (g *Generator) arrayLoad(in tac.Instruction) error {
	at, err := g.arrayType(in.Arg1)
	if err != nil {
		return err
	}
	if _, err := g.load(in.Arg1); err != nil {
		return err
	}
	if err := g.loadAs(in.Arg2, ast.TypeInt); err != nil {
		return err
	}
	if err := g.emit(g.rt.ArrayLoad(at.Elem())); err != nil {
		return err
	}
	return g.store(in.Result, at.Elem())
}

func (g *Generator) arrayStore(in tac.Instruction) error {
	at, err := g.arrayType(in.Result)
	if err != nil {
		return err
	}
	if _, err := g.load(in.Result); err != nil {
		return err
	}
	if err := g.loadAs(in.Arg1, ast.TypeInt); err != nil {
		return err
	}
	if err := g.loadAs(in.Arg2, at.Elem()); err != nil {
		return err
	}
	return g.emit(g.rt.ArrayStore(at.Elem()))
}

// ============================================================================
// 第二遍：解析跳转并编码
// ============================================================================

// Finish 补齐末尾的返回指令后解析所有跳转
func (g *Generator) Finish() (*CodeResult, error) {
	if len(g.params) > 0 {
		return nil, errors.Wrapf(ErrBadOperand, "%d PARAM without CALL", len(g.params))
	}
	if g.fallsThrough() {
		if err := g.terminal(); err != nil {
			return nil, err
		}
	}

	instrs, pcs, code, err := assemble(g.code, g.labels)
	if err != nil {
		return nil, err
	}
	return &CodeResult{
		Code:      code,
		MaxStack:  g.stack.Max(),
		MaxLocals: g.locals.MaxLocals(),
		Instrs:    instrs,
		PCs:       pcs,
		Lines:     lineTable(g.marks, pcs),
		Locals:    g.locals.Ranges(pcs),
	}, nil
}

// fallsThrough 最后一条指令之后仍可到达
func (g *Generator) fallsThrough() bool {
	n := len(g.code)
	if n == 0 {
		return true
	}
	for _, idx := range g.labels {
		if idx == n {
			return true
		}
	}
	return !g.code[n-1].Op.EndsBlock()
}

func (g *Generator) terminal() error {
	g.stack.Reset(0)
	if g.cfg.Main || g.cfg.Result == ast.TypeUnit {
		return g.emit(Simple(OpReturn))
	}
	return g.emitAll(DefaultValue(g.cfg.Result), Simple(ReturnFor(g.cfg.Result)))
}

// assemble 计算每条指令的偏移，把标签换成相对偏移并编码。
// 不修改输入
func assemble(code []Instruction, labels map[string]int) ([]Instruction, []int, []byte, error) {
	pcs := make([]int, len(code)+1)
	pc := 0
	for i, in := range code {
		pcs[i] = pc
		pc += in.Len()
	}
	pcs[len(code)] = pc
	if pc > math.MaxUint16 {
		return nil, nil, nil, errors.Wrapf(ErrCodeTooLarge, "%d bytes", pc)
	}

	resolved := make([]Instruction, len(code))
	w := NewByteWriter()
	for i, in := range code {
		if in.Op.IsBranch() && in.Label != "" {
			target, ok := labels[in.Label]
			if !ok {
				return nil, nil, nil, errors.Wrapf(ErrUndefinedLabel, "%s", in.Label)
			}
			in.Operands = []int{pcs[target] - pcs[i]}
		}
		resolved[i] = in
		if err := in.Encode(w); err != nil {
			return nil, nil, nil, errors.Wrapf(err, "pc %d", pcs[i])
		}
	}
	return resolved, pcs, w.Bytes(), nil
}

// lineTable 行号标记转为 LineNumberTable，相邻同行合并
func lineTable(marks []lineMark, pcs []int) []LineNumber {
	var out []LineNumber
	for _, m := range marks {
		if m.index >= len(pcs)-1 || m.line > math.MaxUint16 {
			continue
		}
		pc, line := uint16(pcs[m.index]), uint16(m.line)
		if n := len(out); n > 0 {
			if out[n-1].Line == line {
				continue
			}
			if out[n-1].StartPC == pc {
				out[n-1].Line = line
				continue
			}
		}
		out = append(out, LineNumber{StartPC: pc, Line: line})
	}
	return out
}
