package vm

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tangzhangming/kforge/internal/jvmgen"
)

// fault 在帧内部用 panic 传递的错误，由 execute 统一回收
type fault struct{ err error }

func verifyf(format string, args ...interface{}) {
	panic(fault{errors.Wrapf(ErrVerify, format, args...)})
}

// ============================================================================
// 栈操作
// ============================================================================

func (f *frame) push(v Value) {
	if len(f.stack) >= f.m.maxStack {
		verifyf("%s: operand stack exceeds max_stack %d", f.m.name, f.m.maxStack)
	}
	f.stack = append(f.stack, v)
}

func (f *frame) pushInt(v int32) { f.push(IntValue(v)) }

func (f *frame) pushDouble(v float64) {
	f.push(DoubleValue(v))
	f.push(top)
}

// pop 弹出一个槽，不检查类别
func (f *frame) pop() Value {
	n := len(f.stack)
	if n == 0 {
		verifyf("%s: operand stack underflow", f.m.name)
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v
}

// pop1 弹出一个单槽值
func (f *frame) pop1() Value {
	v := f.pop()
	if v.K == KindTop {
		verifyf("%s: expected a category 1 value, found half of a double", f.m.name)
	}
	return v
}

func (f *frame) popInt() int32 {
	v := f.pop()
	if v.K != KindInt {
		verifyf("%s: expected int, found %s", f.m.name, v.K)
	}
	return v.I
}

func (f *frame) popDouble() float64 {
	hi := f.pop()
	lo := f.pop()
	if hi.K != KindTop || lo.K != KindDouble {
		verifyf("%s: expected double, found %s/%s", f.m.name, lo.K, hi.K)
	}
	return lo.D
}

func (f *frame) popRef() interface{} {
	v := f.pop()
	if v.K != KindRef {
		verifyf("%s: expected reference, found %s", f.m.name, v.K)
	}
	return v.R
}

// popTyped 按字段描述符弹出一个参数
func (f *frame) popTyped(desc string) Value {
	switch kindOf(desc) {
	case KindDouble:
		return DoubleValue(f.popDouble())
	case KindRef:
		return RefValue(f.popRef())
	}
	return IntValue(f.popInt())
}

// pushTyped 按返回描述符压入结果
func (f *frame) pushTyped(desc string, v Value) {
	want := kindOf(desc)
	if want == KindTop {
		return
	}
	if v.K != want {
		verifyf("%s: call returned %s, descriptor says %s", f.m.name, v.K, desc)
	}
	if want == KindDouble {
		f.pushDouble(v.D)
		return
	}
	f.push(v)
}

// ============================================================================
// 局部变量
// ============================================================================

func (f *frame) local(slot int, k Kind) Value {
	if slot < 0 || slot >= len(f.locals) || k == KindDouble && slot+1 >= len(f.locals) {
		verifyf("%s: local %d outside max_locals %d", f.m.name, slot, f.m.maxLocals)
	}
	v := f.locals[slot]
	if v.K != k || k == KindDouble && f.locals[slot+1].K != KindTop {
		verifyf("%s: local %d holds %s, expected %s", f.m.name, slot, v.K, k)
	}
	return v
}

func (f *frame) setLocal(slot int, v Value) {
	if slot < 0 || slot >= len(f.locals) || v.K == KindDouble && slot+1 >= len(f.locals) {
		verifyf("%s: local %d outside max_locals %d", f.m.name, slot, f.m.maxLocals)
	}
	// 覆盖 double 的后半槽会让前半槽失效
	if slot > 0 && f.locals[slot-1].K == KindDouble {
		f.locals[slot-1] = top
	}
	f.locals[slot] = v
	if v.K == KindDouble {
		f.locals[slot+1] = top
	}
}

// slotOf load/store 指令的局部变量下标
func slotOf(in jvmgen.Decoded, short jvmgen.Opcode) int {
	if len(in.Operands) > 0 {
		return in.Operands[0]
	}
	return int(in.Op - short)
}

// ============================================================================
// 解释循环
// ============================================================================

// execute 执行一个帧直到返回
func (vm *VM) execute(f *frame) (ret Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(fault)
			if !ok {
				panic(r)
			}
			err = p.err
		}
	}()

	m := f.m
	for {
		if f.ip >= len(m.code) {
			verifyf("%s: execution fell off the end of the code", m.name)
		}
		vm.stats.InstructionsExecuted++
		if vm.stats.InstructionsExecuted > uint64(vm.opts.MaxSteps) {
			return Value{}, errors.Wrapf(ErrStepLimit, "%d instructions", vm.opts.MaxSteps)
		}

		in := m.code[f.ip]
		if vm.opts.Trace {
			vm.log.Debug("exec",
				zap.String("method", m.name),
				zap.Int("pc", in.PC),
				zap.Stringer("op", in.Op),
				zap.Int("stack", len(f.stack)))
		}
		next := f.ip + 1

		switch op := in.Op; op {
		case jvmgen.OpNop:

		// 常量
		case jvmgen.OpAconstNull:
			f.push(Null)
		case jvmgen.OpIconstM1, jvmgen.OpIconst0, jvmgen.OpIconst1, jvmgen.OpIconst2,
			jvmgen.OpIconst3, jvmgen.OpIconst4, jvmgen.OpIconst5:
			f.pushInt(int32(op) - int32(jvmgen.OpIconst0))
		case jvmgen.OpDconst0:
			f.pushDouble(0)
		case jvmgen.OpDconst1:
			f.pushDouble(1)
		case jvmgen.OpBipush, jvmgen.OpSipush:
			f.pushInt(int32(in.Operands[0]))
		case jvmgen.OpLdc, jvmgen.OpLdcW:
			vm.ldc(f, uint16(in.Operands[0]))
		case jvmgen.OpLdc2W:
			c, ok := vm.pool.Get(uint16(in.Operands[0])).(jvmgen.DoubleInfo)
			if !ok {
				return Value{}, errors.Wrapf(ErrUnsupported, "ldc2_w #%d is not a double", in.Operands[0])
			}
			f.pushDouble(math.Float64frombits(c.Bits))

		// 加载与存储
		case jvmgen.OpIload, jvmgen.OpIload0, jvmgen.OpIload1, jvmgen.OpIload2, jvmgen.OpIload3:
			f.push(f.local(slotOf(in, jvmgen.OpIload0), KindInt))
		case jvmgen.OpDload, jvmgen.OpDload0, jvmgen.OpDload1, jvmgen.OpDload2, jvmgen.OpDload3:
			f.pushDouble(f.local(slotOf(in, jvmgen.OpDload0), KindDouble).D)
		case jvmgen.OpAload, jvmgen.OpAload0, jvmgen.OpAload1, jvmgen.OpAload2, jvmgen.OpAload3:
			f.push(f.local(slotOf(in, jvmgen.OpAload0), KindRef))
		case jvmgen.OpIstore, jvmgen.OpIstore0, jvmgen.OpIstore1, jvmgen.OpIstore2, jvmgen.OpIstore3:
			f.setLocal(slotOf(in, jvmgen.OpIstore0), IntValue(f.popInt()))
		case jvmgen.OpDstore, jvmgen.OpDstore0, jvmgen.OpDstore1, jvmgen.OpDstore2, jvmgen.OpDstore3:
			f.setLocal(slotOf(in, jvmgen.OpDstore0), DoubleValue(f.popDouble()))
		case jvmgen.OpAstore, jvmgen.OpAstore0, jvmgen.OpAstore1, jvmgen.OpAstore2, jvmgen.OpAstore3:
			f.setLocal(slotOf(in, jvmgen.OpAstore0), RefValue(f.popRef()))

		// 数组
		case jvmgen.OpNewarray:
			n := f.popInt()
			if n < 0 {
				return Value{}, vm.raise(throw(excNegativeSize, "%d", n))
			}
			vm.stats.Allocations++
			f.push(RefValue(newArray(in.Operands[0], int(n), int(vm.stats.Allocations))))
		case jvmgen.OpAnewarray:
			class, err := vm.pool.ClassName(uint16(in.Operands[0]))
			if err != nil {
				return Value{}, errors.Wrap(err, "anewarray")
			}
			n := f.popInt()
			if n < 0 {
				return Value{}, vm.raise(throw(excNegativeSize, "%d", n))
			}
			vm.stats.Allocations++
			f.push(RefValue(newRefArray(class, int(n), int(vm.stats.Allocations))))
		case jvmgen.OpArraylength:
			a, exc := vm.array(f.popRef())
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			f.pushInt(int32(a.Len()))
		case jvmgen.OpIaload, jvmgen.OpDaload:
			i := f.popInt()
			a, exc := vm.element(f.popRef(), i)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			if a.Refs != nil || (op == jvmgen.OpDaload) != (a.Doubles != nil) {
				verifyf("%s: %s from %s", m.name, op, a.Descriptor())
			}
			if op == jvmgen.OpDaload {
				f.pushDouble(a.Doubles[i])
			} else {
				f.pushInt(a.Ints[i])
			}
		case jvmgen.OpAaload:
			i := f.popInt()
			a, exc := vm.element(f.popRef(), i)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			if a.Refs == nil {
				verifyf("%s: aaload from %s", m.name, a.Descriptor())
			}
			f.push(RefValue(a.Refs[i]))
		case jvmgen.OpAastore:
			v := f.popRef()
			i := f.popInt()
			a, exc := vm.element(f.popRef(), i)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			if a.Refs == nil {
				verifyf("%s: aastore into %s", m.name, a.Descriptor())
			}
			a.Refs[i] = v
		case jvmgen.OpIastore:
			v := f.popInt()
			i := f.popInt()
			a, exc := vm.element(f.popRef(), i)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			if a.Ints == nil {
				verifyf("%s: iastore into %s", m.name, a.Descriptor())
			}
			a.Ints[i] = v
		case jvmgen.OpDastore:
			v := f.popDouble()
			i := f.popInt()
			a, exc := vm.element(f.popRef(), i)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			if a.Doubles == nil {
				verifyf("%s: dastore into %s", m.name, a.Descriptor())
			}
			a.Doubles[i] = v

		// 栈操作
		case jvmgen.OpPop:
			f.pop1()
		case jvmgen.OpPop2:
			f.pop()
			f.pop()
		case jvmgen.OpDup:
			v := f.pop1()
			f.push(v)
			f.push(v)
		case jvmgen.OpDupX1:
			v1, v2 := f.pop1(), f.pop1()
			f.push(v1)
			f.push(v2)
			f.push(v1)
		case jvmgen.OpDupX2:
			v1, v2, v3 := f.pop1(), f.pop(), f.pop()
			f.push(v1)
			f.push(v3)
			f.push(v2)
			f.push(v1)
		case jvmgen.OpDup2:
			v1, v2 := f.pop(), f.pop()
			f.push(v2)
			f.push(v1)
			f.push(v2)
			f.push(v1)
		case jvmgen.OpSwap:
			v1, v2 := f.pop1(), f.pop1()
			f.push(v1)
			f.push(v2)

		// int 运算
		case jvmgen.OpIadd, jvmgen.OpIsub, jvmgen.OpImul, jvmgen.OpIdiv, jvmgen.OpIrem,
			jvmgen.OpIand, jvmgen.OpIor, jvmgen.OpIxor:
			b, a := f.popInt(), f.popInt()
			r, exc := intArith(op, a, b)
			if exc != nil {
				return Value{}, vm.raise(exc)
			}
			f.pushInt(r)
		case jvmgen.OpIneg:
			f.pushInt(-f.popInt())
		case jvmgen.OpIinc:
			slot := in.Operands[0]
			v := f.local(slot, KindInt)
			f.setLocal(slot, IntValue(v.I+int32(in.Operands[1])))

		// double 运算
		case jvmgen.OpDadd, jvmgen.OpDsub, jvmgen.OpDmul, jvmgen.OpDdiv, jvmgen.OpDrem:
			b, a := f.popDouble(), f.popDouble()
			f.pushDouble(doubleArith(op, a, b))
		case jvmgen.OpDneg:
			f.pushDouble(-f.popDouble())
		case jvmgen.OpI2d:
			f.pushDouble(float64(f.popInt()))
		case jvmgen.OpD2i:
			f.pushInt(d2i(f.popDouble()))
		case jvmgen.OpDcmpl, jvmgen.OpDcmpg:
			b, a := f.popDouble(), f.popDouble()
			f.pushInt(dcmp(op, a, b))

		// 跳转
		case jvmgen.OpIfeq, jvmgen.OpIfne, jvmgen.OpIflt, jvmgen.OpIfge, jvmgen.OpIfgt, jvmgen.OpIfle:
			if zeroBranch(op, f.popInt()) {
				next = m.index[in.Target()]
			}
		case jvmgen.OpIfIcmpeq, jvmgen.OpIfIcmpne, jvmgen.OpIfIcmplt,
			jvmgen.OpIfIcmpge, jvmgen.OpIfIcmpgt, jvmgen.OpIfIcmple:
			b, a := f.popInt(), f.popInt()
			if intBranch(op, a, b) {
				next = m.index[in.Target()]
			}
		case jvmgen.OpIfAcmpeq, jvmgen.OpIfAcmpne:
			b, a := f.popRef(), f.popRef()
			if sameRef(a, b) == (op == jvmgen.OpIfAcmpeq) {
				next = m.index[in.Target()]
			}
		case jvmgen.OpIfnull, jvmgen.OpIfnonnull:
			if (f.popRef() == nil) == (op == jvmgen.OpIfnull) {
				next = m.index[in.Target()]
			}
		case jvmgen.OpGoto:
			next = m.index[in.Target()]

		// 返回
		case jvmgen.OpIreturn, jvmgen.OpDreturn, jvmgen.OpAreturn, jvmgen.OpReturn:
			return vm.ret(f, op), nil

		// 字段与方法
		case jvmgen.OpGetstatic:
			if err := vm.getstatic(f, uint16(in.Operands[0])); err != nil {
				return Value{}, err
			}
		case jvmgen.OpInvokevirtual, jvmgen.OpInvokespecial, jvmgen.OpInvokestatic:
			if err := vm.call(f, op, uint16(in.Operands[0])); err != nil {
				return Value{}, err
			}

		default:
			return Value{}, errors.Wrapf(ErrUnsupported, "%s at pc %d in %s", op, in.PC, m.name)
		}
		f.ip = next
	}
}

var returnKinds = map[jvmgen.Opcode]Kind{
	jvmgen.OpIreturn: KindInt,
	jvmgen.OpDreturn: KindDouble,
	jvmgen.OpAreturn: KindRef,
	jvmgen.OpReturn:  KindTop,
}

// ret 按返回指令取出返回值，并检查它和描述符一致
func (vm *VM) ret(f *frame, op jvmgen.Opcode) Value {
	want := returnKinds[op]
	if kindOf(f.m.result) != want {
		verifyf("%s: %s in a method returning %s", f.m.name, op, f.m.result)
	}
	switch want {
	case KindInt:
		return IntValue(f.popInt())
	case KindDouble:
		return DoubleValue(f.popDouble())
	case KindRef:
		return RefValue(f.popRef())
	}
	return Value{}
}

func (vm *VM) ldc(f *frame, idx uint16) {
	switch c := vm.pool.Get(idx).(type) {
	case jvmgen.IntegerInfo:
		f.pushInt(c.Value)
	case jvmgen.StringInfo:
		s, err := vm.pool.Utf8(c.StringIndex)
		if err != nil {
			panic(fault{errors.Wrapf(ErrVerify, "ldc #%d: %v", idx, err)})
		}
		f.push(RefValue(s))
	default:
		panic(fault{errors.Wrapf(ErrUnsupported, "ldc #%d (%T)", idx, c)})
	}
}

func (vm *VM) getstatic(f *frame, idx uint16) error {
	ref, err := vm.pool.Ref(idx)
	if err != nil {
		return errors.Wrapf(ErrVerify, "getstatic: %v", err)
	}
	if ref.Class == jvmgen.ClassSystem && ref.Name == "out" {
		f.push(RefValue(vm.stdout))
		return nil
	}
	return errors.Wrapf(ErrNoSuchMethod, "field %s", ref)
}

// call 执行三种 invoke 指令
func (vm *VM) call(f *frame, op jvmgen.Opcode, idx uint16) error {
	ref, err := vm.pool.Ref(idx)
	if err != nil {
		return errors.Wrapf(ErrVerify, "%s: %v", op, err)
	}
	params, result, err := jvmgen.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return errors.Wrapf(ErrVerify, "%s: %v", ref, err)
	}
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = f.popTyped(params[i])
	}
	var this Value
	if op != jvmgen.OpInvokestatic {
		this = RefValue(f.popRef())
	}

	if ref.Class == vm.class {
		m, ok := vm.methods[ref.Name+ref.Descriptor]
		if !ok || m.static != (op == jvmgen.OpInvokestatic) {
			return errors.Wrapf(ErrNoSuchMethod, "%s", ref)
		}
		slots, err := expand(params, args)
		if err != nil {
			return err
		}
		if !m.static {
			slots = append([]Value{this}, slots...)
		}
		r, err := vm.invoke(m, slots)
		if err != nil {
			return err
		}
		f.pushTyped(result, r)
		return nil
	}

	fn, ok := natives[ref.Class+"."+ref.Name+ref.Descriptor]
	if !ok {
		return errors.Wrapf(ErrNoSuchMethod, "%s", ref)
	}
	if op != jvmgen.OpInvokestatic && this.R == nil {
		return vm.raise(throw(excNullPointer, "cannot invoke %s.%s on null", ref.Class, ref.Name))
	}
	vm.stats.NativeCalls++
	r, err := fn(vm, this, args)
	if err != nil {
		if e, ok := err.(*Exception); ok {
			return vm.raise(e)
		}
		return err
	}
	f.pushTyped(result, r)
	return nil
}

// ============================================================================
// 运算语义
// ============================================================================

func intArith(op jvmgen.Opcode, a, b int32) (int32, *Exception) {
	switch op {
	case jvmgen.OpIadd:
		return a + b, nil
	case jvmgen.OpIsub:
		return a - b, nil
	case jvmgen.OpImul:
		return a * b, nil
	case jvmgen.OpIdiv, jvmgen.OpIrem:
		if b == 0 {
			return 0, throw(excArithmetic, "/ by zero")
		}
		// MinInt32 / -1 在 Go 和 Java 里都回绕为 MinInt32，余数为 0
		if op == jvmgen.OpIdiv {
			return a / b, nil
		}
		return a % b, nil
	case jvmgen.OpIand:
		return a & b, nil
	case jvmgen.OpIor:
		return a | b, nil
	}
	return a ^ b, nil
}

func doubleArith(op jvmgen.Opcode, a, b float64) float64 {
	switch op {
	case jvmgen.OpDadd:
		return a + b
	case jvmgen.OpDsub:
		return a - b
	case jvmgen.OpDmul:
		return a * b
	case jvmgen.OpDdiv:
		return a / b
	}
	return math.Mod(a, b)
}

// d2i Java 的截断规则：NaN 为 0，越界取边界值
func d2i(d float64) int32 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	}
	return int32(d)
}

// dcmp NaN 时 dcmpl 得 -1，dcmpg 得 1
func dcmp(op jvmgen.Opcode, a, b float64) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		if op == jvmgen.OpDcmpg {
			return 1
		}
		return -1
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func zeroBranch(op jvmgen.Opcode, v int32) bool {
	return intBranch(op-jvmgen.OpIfeq+jvmgen.OpIfIcmpeq, v, 0)
}

func intBranch(op jvmgen.Opcode, a, b int32) bool {
	switch op {
	case jvmgen.OpIfIcmpeq:
		return a == b
	case jvmgen.OpIfIcmpne:
		return a != b
	case jvmgen.OpIfIcmplt:
		return a < b
	case jvmgen.OpIfIcmpge:
		return a >= b
	case jvmgen.OpIfIcmpgt:
		return a > b
	}
	return a <= b
}

// sameRef 引用相等；字符串常量按值驻留
func sameRef(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return a == b
}

func (vm *VM) array(r interface{}) (*Array, *Exception) {
	if r == nil {
		return nil, throw(excNullPointer, "")
	}
	a, ok := r.(*Array)
	if !ok {
		verifyf("expected an array, found %T", r)
	}
	return a, nil
}

func (vm *VM) element(r interface{}, i int32) (*Array, *Exception) {
	a, exc := vm.array(r)
	if exc != nil {
		return nil, exc
	}
	if i < 0 || int(i) >= a.Len() {
		return nil, throw(excArrayIndex, "Index %d out of bounds for length %d", i, a.Len())
	}
	return a, nil
}
