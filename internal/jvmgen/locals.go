package jvmgen

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

// Local 分配了槽位的局部变量
type Local struct {
	Key  string // 分配键，通常等于变量名
	Name string // LocalVariableTable 中的名字
	Type ast.Type
	Slot int
	Desc string // 描述符，为空时由 Type 推出

	// 变量在代码中的生存范围，Finish 时填写。参数和保留槽位覆盖整个方法
	StartPC int
	Length  int

	whole       bool
	first, last int // 第一次写入和最后一次访问的指令下标
}

// Descriptor 局部变量的类型描述符
func (l Local) Descriptor() string {
	if l.Desc != "" {
		return l.Desc
	}
	return Descriptor(l.Type)
}

type localKey struct {
	key string
	typ ast.Type
}

// LocalVariableManager 按首次出现的顺序分配槽位，double 占两个。
// 同名不同类型的变量（如兄弟作用域中的 x: Int 和 x: Double）各占一个槽位
type LocalVariableManager struct {
	slots   map[localKey]int // 到 vars 的下标
	current map[string]int   // 每个名字最近一次绑定的变量
	vars    []Local
	next    int
}

// NewLocalVariableManager 创建局部变量管理器
func NewLocalVariableManager() *LocalVariableManager {
	return &LocalVariableManager{
		slots:   make(map[localKey]int),
		current: make(map[string]int),
	}
}

// Allocate 返回 name:t 的槽位，第一次出现时分配，并成为 name 的当前绑定
func (m *LocalVariableManager) Allocate(name string, t ast.Type) (int, error) {
	return m.allocate(Local{Key: name, Name: name, Type: t, first: -1})
}

// Param 分配覆盖整个方法的参数槽位
func (m *LocalVariableManager) Param(name string, t ast.Type) (int, error) {
	return m.allocate(Local{Key: name, Name: name, Type: t, whole: true})
}

// Reserve 分配不对应源码变量的槽位（如 main 的 args），desc 覆盖类型描述符
func (m *LocalVariableManager) Reserve(key, name, desc string) (int, error) {
	return m.allocate(Local{Key: key, Name: name, Type: ast.TypeUnknown, Desc: desc, whole: true})
}

func (m *LocalVariableManager) allocate(l Local) (int, error) {
	k := localKey{l.Key, l.Type}
	if id, ok := m.slots[k]; ok {
		m.current[l.Key] = id
		return m.vars[id].Slot, nil
	}
	size := 1
	if l.Type.IsWide() {
		size = 2
	}
	if m.next+size-1 > math.MaxUint8 {
		return 0, errors.Wrapf(ErrTooManyLocals, "%s needs slot %d", l.Name, m.next)
	}
	l.Slot = m.next
	l.first, l.last = -1, -1
	m.slots[k] = len(m.vars)
	m.current[l.Key] = len(m.vars)
	m.vars = append(m.vars, l)
	m.next += size
	return l.Slot, nil
}

// Slot 名字当前绑定的槽位
func (m *LocalVariableManager) Slot(name string) (int, bool) {
	l, ok := m.Lookup(name)
	return l.Slot, ok
}

// Lookup 名字当前绑定的变量
func (m *LocalVariableManager) Lookup(name string) (Local, bool) {
	id, ok := m.current[name]
	if !ok {
		return Local{}, false
	}
	return m.vars[id], true
}

// Resolve 优先返回类型为 t 的同名变量，没有时返回当前绑定
func (m *LocalVariableManager) Resolve(name string, t ast.Type) (Local, bool) {
	if t != ast.TypeUnknown {
		if id, ok := m.slots[localKey{name, t}]; ok {
			return m.vars[id], true
		}
	}
	return m.Lookup(name)
}

// Touch 记录第 index 条指令访问了 name:t，store 表示写入
func (m *LocalVariableManager) Touch(name string, t ast.Type, index int, store bool) {
	id, ok := m.slots[localKey{name, t}]
	if !ok {
		return
	}
	l := &m.vars[id]
	if store && l.first < 0 {
		l.first = index
	}
	if index > l.last {
		l.last = index
	}
}

// MaxLocals 方法需要的局部变量槽数
func (m *LocalVariableManager) MaxLocals() int { return m.next }

// Locals 按分配顺序返回所有变量
func (m *LocalVariableManager) Locals() []Local {
	return append([]Local(nil), m.vars...)
}

// Ranges 按指令偏移填写每个变量的生存范围：从第一次写入之后到最后一次访问结束。
// pcs 的最后一项是代码长度
func (m *LocalVariableManager) Ranges(pcs []int) []Local {
	out := m.Locals()
	codeLen := pcs[len(pcs)-1]
	for i := range out {
		l := &out[i]
		if l.whole || l.first < 0 {
			l.StartPC, l.Length = 0, codeLen
			continue
		}
		l.StartPC = pcs[l.first+1]
		if end := pcs[l.last+1]; end > l.StartPC {
			l.Length = end - l.StartPC
		}
	}
	return out
}

// StackDepthTracker 记录当前和最大操作数栈深度
type StackDepthTracker struct {
	depth int
	max   int
}

// Push 压入 n 个槽
func (s *StackDepthTracker) Push(n int) {
	s.depth += n
	if s.depth > s.max {
		s.max = s.depth
	}
}

// Pop 弹出 n 个槽，不会低于 0
func (s *StackDepthTracker) Pop(n int) {
	s.depth -= n
	if s.depth < 0 {
		s.depth = 0
	}
}

// Reset 在控制流汇合点恢复已知深度
func (s *StackDepthTracker) Reset(depth int) { s.depth = depth }

// Depth 当前深度
func (s *StackDepthTracker) Depth() int { return s.depth }

// Max 最大深度
func (s *StackDepthTracker) Max() int { return s.max }

// StackEffect 指令弹出和压入的栈槽数，字段和方法指令查常量池
func StackEffect(in Instruction, pool *ConstantPool) (pop, push int, err error) {
	info, ok := opTable[in.Op]
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnsupportedOp, "%s", in.Op)
	}
	if info.pop >= 0 {
		return info.pop, info.push, nil
	}
	if len(in.Operands) != 1 {
		return 0, 0, errors.Wrapf(ErrBadOperand, "%s without constant index", in.Op)
	}
	ref, err := pool.Ref(uint16(in.Operands[0]))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s", in.Op)
	}
	switch in.Op {
	case OpGetstatic:
		return 0, SlotSize(ref.Descriptor), nil
	case OpPutstatic:
		return SlotSize(ref.Descriptor), 0, nil
	case OpGetfield:
		return 1, SlotSize(ref.Descriptor), nil
	case OpPutfield:
		return 1 + SlotSize(ref.Descriptor), 0, nil
	}
	args, ret, err := MethodSlots(ref.Descriptor)
	if err != nil {
		return 0, 0, err
	}
	if in.Op != OpInvokestatic {
		args++
	}
	return args, ret, nil
}
