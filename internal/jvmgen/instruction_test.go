package jvmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/kforge/internal/ast"
)

func TestPushIntChoosesShortestForm(t *testing.T) {
	tests := []struct {
		v    int32
		want Instruction
	}{
		{-1, Simple(OpIconstM1)},
		{0, Simple(OpIconst0)},
		{5, Simple(OpIconst5)},
		{6, WithByte(OpBipush, 6)},
		{-2, WithByte(OpBipush, -2)},
		{127, WithByte(OpBipush, 127)},
		{-128, WithByte(OpBipush, -128)},
		{128, WithShort(OpSipush, 128)},
		{-129, WithShort(OpSipush, -129)},
		{32767, WithShort(OpSipush, 32767)},
		{-32768, WithShort(OpSipush, -32768)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PushInt(NewConstantPool(), tt.v), "value %d", tt.v)
	}

	p := NewConstantPool()
	in := PushInt(p, 32768)
	assert.Equal(t, OpLdc, in.Op)
	assert.Equal(t, IntegerInfo{Value: 32768}, p.Get(uint16(in.Operands[0])))
}

func TestPushIntUsesLdcWideAbove255(t *testing.T) {
	p := NewConstantPool()
	for i := 0; i < 300; i++ {
		p.AddUtf8(string(rune('a' + i%26)) + string(rune('A'+i/26)))
	}
	in := PushInt(p, 100000)
	assert.Equal(t, OpLdcW, in.Op)
	assert.Greater(t, in.Operands[0], 255)
	assert.Equal(t, 3, in.Len())
}

func TestPushDouble(t *testing.T) {
	p := NewConstantPool()
	assert.Equal(t, Simple(OpDconst0), PushDouble(p, 0))
	assert.Equal(t, Simple(OpDconst1), PushDouble(p, 1))
	assert.Equal(t, OpLdc2W, PushDouble(p, negZero()).Op)
	in := PushDouble(p, 2.5)
	assert.Equal(t, OpLdc2W, in.Op)
}

func TestLocalInstructions(t *testing.T) {
	in, err := LoadLocal(ast.TypeInt, 0)
	require.NoError(t, err)
	assert.Equal(t, Simple(OpIload0), in)

	in, err = LoadLocal(ast.TypeDouble, 3)
	require.NoError(t, err)
	assert.Equal(t, Simple(OpDload3), in)

	in, err = StoreLocal(ast.TypeString, 2)
	require.NoError(t, err)
	assert.Equal(t, Simple(OpAstore2), in)

	in, err = StoreLocal(ast.TypeIntArray, 4)
	require.NoError(t, err)
	assert.Equal(t, WithByte(OpAstore, 4), in)

	in, err = LoadLocal(ast.TypeBoolean, 255)
	require.NoError(t, err)
	assert.Equal(t, WithByte(OpIload, 255), in)

	_, err = LoadLocal(ast.TypeInt, 256)
	assert.ErrorIs(t, err, ErrTooManyLocals)
}

func TestEncode(t *testing.T) {
	w := NewByteWriter()
	require.NoError(t, WithByte(OpBipush, -2).Encode(w))
	require.NoError(t, WithShort(OpSipush, 300).Encode(w))
	require.NoError(t, Instruction{Op: OpGoto, Operands: []int{-3}}.Encode(w))
	require.NoError(t, Iinc(1, -1).Encode(w))
	assert.Equal(t, []byte{0x10, 0xFE, 0x11, 0x01, 0x2C, 0xA7, 0xFF, 0xFD, 0x84, 0x01, 0xFF}, w.Bytes())

	err := Branch(OpGoto, "L0").Encode(NewByteWriter())
	assert.ErrorIs(t, err, ErrUndefinedLabel)

	err = Instruction{Op: OpIfeq, Operands: []int{40000}}.Encode(NewByteWriter())
	assert.ErrorIs(t, err, ErrBranchRange)

	err = WithByte(OpBipush, 200).Encode(NewByteWriter())
	assert.ErrorIs(t, err, ErrBadOperand)

	err = Simple(Opcode(0xCA)).Encode(NewByteWriter())
	assert.ErrorIs(t, err, ErrUnsupportedOp)
}

func TestNegate(t *testing.T) {
	pairs := [][2]Opcode{
		{OpIfeq, OpIfne}, {OpIflt, OpIfge}, {OpIfgt, OpIfle},
		{OpIfIcmpeq, OpIfIcmpne}, {OpIfIcmplt, OpIfIcmpge}, {OpIfIcmpgt, OpIfIcmple},
		{OpIfAcmpeq, OpIfAcmpne}, {OpIfnull, OpIfnonnull},
	}
	for _, p := range pairs {
		n, ok := p[0].Negate()
		require.True(t, ok)
		assert.Equal(t, p[1], n)
		n, ok = p[1].Negate()
		require.True(t, ok)
		assert.Equal(t, p[0], n)
	}
	_, ok := OpGoto.Negate()
	assert.False(t, ok)
}

func TestDescriptors(t *testing.T) {
	assert.Equal(t, "(ID[ILjava/lang/String;Z)V", MethodDescriptor(
		[]ast.Type{ast.TypeInt, ast.TypeDouble, ast.TypeIntArray, ast.TypeString, ast.TypeBoolean}, ast.TypeUnit))
	assert.Equal(t, "()[D", MethodDescriptor(nil, ast.TypeDoubleArray))

	args, ret, err := MethodSlots("(IDLjava/lang/String;[J)D")
	require.NoError(t, err)
	assert.Equal(t, 5, args)
	assert.Equal(t, 2, ret)

	params, result, err := ParseMethodDescriptor("([[ILjava/lang/Object;)V")
	require.NoError(t, err)
	assert.Equal(t, []string{"[[I", "Ljava/lang/Object;"}, params)
	assert.Equal(t, "V", result)

	for _, bad := range []string{"I", "(I", "(Q)V", "(Ljava/lang/String)V", "()"} {
		_, _, err := ParseMethodDescriptor(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocalVariableManager(t *testing.T) {
	m := NewLocalVariableManager()
	a, err := m.Reserve("$args", "args", "[Ljava/lang/String;")
	require.NoError(t, err)
	d, err := m.Allocate("d", ast.TypeDouble)
	require.NoError(t, err)
	x, err := m.Allocate("x", ast.TypeInt)
	require.NoError(t, err)
	again, err := m.Allocate("d", ast.TypeDouble)
	require.NoError(t, err)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, d)
	assert.Equal(t, 3, x)
	assert.Equal(t, d, again)
	assert.Equal(t, 4, m.MaxLocals())

	l, ok := m.Lookup("$args")
	require.True(t, ok)
	assert.Equal(t, "[Ljava/lang/String;", l.Descriptor())

	// 同名不同类型另占槽位，并成为当前绑定
	xd, err := m.Allocate("x", ast.TypeDouble)
	require.NoError(t, err)
	assert.Equal(t, 4, xd)
	assert.Equal(t, 6, m.MaxLocals())
	slot, ok := m.Slot("x")
	require.True(t, ok)
	assert.Equal(t, xd, slot)
	l, ok = m.Resolve("x", ast.TypeInt)
	require.True(t, ok)
	assert.Equal(t, x, l.Slot)
	l, ok = m.Resolve("x", ast.TypeUnknown)
	require.True(t, ok)
	assert.Equal(t, xd, l.Slot)
	_, ok = m.Lookup("y")
	assert.False(t, ok)

	for i := 0; m.MaxLocals() < 256; i++ {
		_, err := m.Allocate(string(rune('a'+i%26))+string(rune('0'+i/26)), ast.TypeInt)
		require.NoError(t, err)
	}
	_, err = m.Allocate("overflow", ast.TypeInt)
	assert.ErrorIs(t, err, ErrTooManyLocals)
}

func TestLocalRanges(t *testing.T) {
	m := NewLocalVariableManager()
	_, err := m.Param("n", ast.TypeInt)
	require.NoError(t, err)
	_, err = m.Allocate("x", ast.TypeInt)
	require.NoError(t, err)
	_, err = m.Allocate("x", ast.TypeDouble)
	require.NoError(t, err)
	_, err = m.Allocate("unused", ast.TypeInt)
	require.NoError(t, err)

	// 指令 0..5 的偏移，最后一项是代码长度
	pcs := []int{0, 2, 3, 5, 6, 8, 9}
	m.Touch("x", ast.TypeInt, 1, true)
	m.Touch("x", ast.TypeInt, 2, false)
	m.Touch("x", ast.TypeDouble, 3, true)
	m.Touch("x", ast.TypeDouble, 5, false)
	m.Touch("n", ast.TypeInt, 0, false)

	got := m.Ranges(pcs)
	require.Len(t, got, 4)
	assert.Equal(t, [2]int{0, 9}, [2]int{got[0].StartPC, got[0].Length})
	assert.Equal(t, [2]int{3, 2}, [2]int{got[1].StartPC, got[1].Length})
	assert.Equal(t, [2]int{6, 3}, [2]int{got[2].StartPC, got[2].Length})
	assert.Equal(t, [2]int{0, 9}, [2]int{got[3].StartPC, got[3].Length})
	assert.NotEqual(t, got[1].Slot, got[2].Slot)
}

func TestStackDepthTracker(t *testing.T) {
	var s StackDepthTracker
	s.Push(2)
	s.Push(1)
	s.Pop(3)
	s.Pop(1)
	assert.Equal(t, 0, s.Depth())
	assert.Equal(t, 3, s.Max())
	s.Reset(2)
	assert.Equal(t, 2, s.Depth())
}
