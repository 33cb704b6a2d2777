// Package vm 是一个只认识 kforge 输出子集的 JVM 解释器，
// 用于在没有 java 命令的环境里运行和校验生成的 class 文件。
package vm

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tangzhangming/kforge/internal/jvmgen"
)

// ============================================================================
// VM 核心结构
// ============================================================================

// DefaultMaxSteps 默认指令数上限
const DefaultMaxSteps = 50_000_000

// CallStackSize 默认调用深度上限
const CallStackSize = 256

// Options 解释器选项
type Options struct {
	Out      io.Writer   // System.out 的目标，nil 时丢弃输出
	MaxSteps int         // 0 表示 DefaultMaxSteps
	MaxDepth int         // 0 表示 CallStackSize
	Logger   *zap.Logger // nil 时不记日志
	Trace    bool        // 每条指令记一条 Debug 日志
}

// VMStats 虚拟机统计信息
type VMStats struct {
	InstructionsExecuted uint64 // 执行的指令数
	FunctionCalls        uint64 // 类内方法调用次数
	NativeCalls          uint64 // 内建库方法调用次数
	Allocations          uint64 // 数组分配次数
	MaxCallDepth         int    // 最深调用链
}

// VM 虚拟机
type VM struct {
	class   string
	source  string
	pool    *jvmgen.ConstantPool
	methods map[string]*method

	opts   Options
	log    *zap.Logger
	stdout *PrintStream

	frames []*frame
	stats  VMStats
}

// method 加载后的方法
type method struct {
	name      string
	desc      string
	static    bool
	maxStack  int
	maxLocals int
	code      []jvmgen.Decoded
	index     map[int]int // pc -> code 下标
	lines     []jvmgen.LineNumber
	params    []string
	result    string
}

// frame 调用帧
type frame struct {
	m      *method
	locals []Value
	stack  []Value
	ip     int // code 下标
}

// ============================================================================
// VM 生命周期
// ============================================================================

// New 加载 class 文件。字节码在这里解码一次，跳转目标不落在指令边界上的方法直接拒绝。
func New(cf *jvmgen.ClassFile, opts Options) (*VM, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = CallStackSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	vm := &VM{
		class:   cf.Name(),
		source:  cf.SourceFile(),
		pool:    cf.Pool,
		methods: make(map[string]*method),
		opts:    opts,
		log:     opts.Logger.Named("vm"),
		stdout:  &PrintStream{w: opts.Out},
	}
	for _, mi := range cf.Methods {
		m, err := vm.load(mi)
		if err != nil {
			return nil, err
		}
		if m != nil {
			vm.methods[m.name+m.desc] = m
		}
	}
	vm.log.Debug("class loaded", zap.String("class", vm.class), zap.Int("methods", len(vm.methods)))
	return vm, nil
}

func (vm *VM) load(mi *jvmgen.MethodInfo) (*method, error) {
	name, err := vm.pool.Utf8(mi.NameIndex)
	if err != nil {
		return nil, errors.Wrap(err, "method name")
	}
	desc, err := vm.pool.Utf8(mi.DescriptorIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "method %s descriptor", name)
	}
	code := mi.Code()
	if code == nil {
		return nil, nil
	}
	params, result, err := jvmgen.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, errors.Wrapf(ErrVerify, "method %s: %v", name, err)
	}
	decoded, err := jvmgen.Decode(code.Code)
	if err != nil {
		return nil, errors.Wrapf(err, "method %s%s", name, desc)
	}

	m := &method{
		name:      name,
		desc:      desc,
		static:    mi.AccessFlags&jvmgen.AccStatic != 0,
		maxStack:  int(code.MaxStack),
		maxLocals: int(code.MaxLocals),
		code:      decoded,
		index:     make(map[int]int, len(decoded)),
		params:    params,
		result:    result,
	}
	for i, d := range decoded {
		m.index[d.PC] = i
	}
	for _, d := range decoded {
		if d.Op.IsBranch() {
			if _, ok := m.index[d.Target()]; !ok {
				return nil, errors.Wrapf(ErrVerify, "%s: branch at pc %d targets %d, not an instruction", name, d.PC, d.Target())
			}
		}
	}
	for _, a := range code.Attributes {
		if lnt, ok := a.(*jvmgen.LineNumberTable); ok {
			m.lines = append(m.lines, lnt.Entries...)
		}
	}

	args := 0
	for _, p := range params {
		args += jvmgen.SlotSize(p)
	}
	if !m.static {
		args++
	}
	if args > m.maxLocals {
		return nil, errors.Wrapf(ErrVerify, "%s: %d argument slots exceed max_locals %d", name, args, m.maxLocals)
	}
	return m, nil
}

// Run 执行 main(String[])
func (vm *VM) Run() error {
	m, ok := vm.methods["main"+jvmgen.MainDescriptor]
	if !ok || !m.static {
		return errors.Wrapf(ErrNoMain, "class %s", vm.class)
	}
	vm.log.Debug("run", zap.String("class", vm.class))
	_, err := vm.invoke(m, []Value{RefValue(&[]string{})})
	if err != nil {
		vm.log.Debug("run failed", zap.Error(err), zap.Uint64("instructions", vm.stats.InstructionsExecuted))
	}
	return err
}

// Invoke 调用类中的静态方法，参数按描述符一个值一个参数传入
func (vm *VM) Invoke(name, desc string, args ...Value) (Value, error) {
	m, ok := vm.methods[name+desc]
	if !ok || !m.static {
		return Value{}, errors.Wrapf(ErrNoSuchMethod, "%s.%s%s", vm.class, name, desc)
	}
	if len(args) != len(m.params) {
		return Value{}, errors.Errorf("%s%s takes %d arguments, got %d", name, desc, len(m.params), len(args))
	}
	slots, err := expand(m.params, args)
	if err != nil {
		return Value{}, err
	}
	return vm.invoke(m, slots)
}

// Stats 获取统计信息
func (vm *VM) Stats() VMStats {
	return vm.stats
}

// Run 加载并执行 class 文件的 main 方法
func Run(cf *jvmgen.ClassFile, opts Options) (VMStats, error) {
	vm, err := New(cf, opts)
	if err != nil {
		return VMStats{}, err
	}
	err = vm.Run()
	return vm.stats, err
}

// RunBytes 解析并执行 class 文件
func RunBytes(data []byte, opts Options) (VMStats, error) {
	cf, err := jvmgen.Parse(data)
	if err != nil {
		return VMStats{}, err
	}
	return Run(cf, opts)
}

// ============================================================================
// 方法调用
// ============================================================================

// invoke 以已展开的参数槽调用方法
func (vm *VM) invoke(m *method, args []Value) (Value, error) {
	if len(vm.frames) >= vm.opts.MaxDepth {
		return Value{}, vm.raise(throw(excStackOverflow, ""))
	}
	f := &frame{
		m:      m,
		locals: make([]Value, m.maxLocals),
		stack:  make([]Value, 0, m.maxStack),
	}
	copy(f.locals, args)

	vm.frames = append(vm.frames, f)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()
	vm.stats.FunctionCalls++
	if len(vm.frames) > vm.stats.MaxCallDepth {
		vm.stats.MaxCallDepth = len(vm.frames)
	}
	return vm.execute(f)
}

// expand 把每个参数一个值的列表展开成局部变量槽
func expand(params []string, args []Value) ([]Value, error) {
	slots := make([]Value, 0, len(args)*2)
	for i, p := range params {
		want := kindOf(p)
		if args[i].K != want {
			return nil, errors.Wrapf(ErrVerify, "argument %d: want %s, got %s", i, want, args[i].K)
		}
		slots = append(slots, args[i])
		if want == KindDouble {
			slots = append(slots, top)
		}
	}
	return slots, nil
}

// kindOf 字段描述符对应的值类别
func kindOf(desc string) Kind {
	switch desc[0] {
	case 'D':
		return KindDouble
	case 'L', '[':
		return KindRef
	case 'V':
		return KindTop
	}
	return KindInt
}

// raise 给异常补上当前调用链
func (vm *VM) raise(e *Exception) error {
	if e.Trace == nil {
		for i := len(vm.frames) - 1; i >= 0; i-- {
			f := vm.frames[i]
			e.Trace = append(e.Trace, Frame{
				Class:  vm.class,
				Method: f.m.name,
				Source: vm.source,
				Line:   f.line(),
			})
		}
	}
	return e
}

// line 当前指令所在的源码行，没有行号表时为 0
func (f *frame) line() int {
	if f.ip >= len(f.m.code) {
		return 0
	}
	pc := f.m.code[f.ip].PC
	line := 0
	best := -1
	for _, e := range f.m.lines {
		if int(e.StartPC) <= pc && int(e.StartPC) > best {
			best = int(e.StartPC)
			line = int(e.Line)
		}
	}
	return line
}
