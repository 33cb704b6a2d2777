package jvmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/kforge/internal/ast"
)

func TestNewArrayByElementType(t *testing.T) {
	pool := NewConstantPool()
	rt := NewRuntime(pool)

	assert.Equal(t, WithByte(OpNewarray, TypeInt), rt.NewArray(ast.TypeInt))
	assert.Equal(t, WithByte(OpNewarray, TypeDouble), rt.NewArray(ast.TypeDouble))

	tests := []struct {
		elem  ast.Type
		class string
	}{
		{ast.TypeString, "java/lang/String"},
		{ast.TypeIntArray, "[I"},
		{ast.TypeDoubleArray, "[D"},
	}
	for _, tt := range tests {
		in := rt.NewArray(tt.elem)
		require.Equal(t, OpAnewarray, in.Op, tt.elem)
		name, err := pool.ClassName(uint16(in.Operands[0]))
		require.NoError(t, err)
		assert.Equal(t, tt.class, name)
		assert.Equal(t, OpAaload, rt.ArrayLoad(tt.elem).Op)
		assert.Equal(t, OpAastore, rt.ArrayStore(tt.elem).Op)
	}
	assert.Equal(t, OpDaload, rt.ArrayLoad(ast.TypeDouble).Op)
	assert.Equal(t, OpIastore, rt.ArrayStore(ast.TypeInt).Op)
}

func TestStringArrayLiteral(t *testing.T) {
	pool := NewConstantPool()
	rt := NewRuntime(pool)
	words := []string{"a", "b"}

	var code []Instruction
	emit := func(in Instruction) error {
		code = append(code, in)
		return nil
	}
	err := rt.ArrayLiteral(ast.TypeString, len(words), emit, func(i int) error {
		return emit(rt.LoadString(words[i]))
	})
	require.NoError(t, err)

	ops := make([]Opcode, len(code))
	for i, in := range code {
		ops[i] = in.Op
	}
	assert.Equal(t, []Opcode{
		OpIconst2, OpAnewarray,
		OpDup, OpIconst0, OpLdc, OpAastore,
		OpDup, OpIconst1, OpLdc, OpAastore,
	}, ops)

	show, err := rt.Print("println", ast.TypeString)
	require.NoError(t, err)
	code = append(code, Simple(OpIconst1), rt.ArrayLoad(ast.TypeString))
	code = append(code, show...)
	code = append(code, Simple(OpReturn))
	w := NewByteWriter()
	for _, in := range code {
		require.NoError(t, in.Encode(w))
	}
	check := CheckCode(w.Bytes(), pool)
	require.True(t, check.IsValid, check.Errors)
	assert.Equal(t, 4, check.MaxDepth)
}

func TestArrayLiteralStopsOnElementError(t *testing.T) {
	rt := NewRuntime(NewConstantPool())
	n := 0
	err := rt.ArrayLiteral(ast.TypeInt, 3, func(Instruction) error { n++; return nil }, func(i int) error {
		if i == 1 {
			return ErrBadOperand
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrBadOperand)
	assert.Contains(t, err.Error(), "element 1")
	assert.Equal(t, 7, n)
}

func TestMainMethod(t *testing.T) {
	pool := NewConstantPool()
	m := NewRuntime(pool).MainMethod(&CodeResult{Code: []byte{byte(OpReturn)}})

	assert.Equal(t, uint16(AccPublic|AccStatic), m.AccessFlags)
	name, err := pool.Utf8(m.NameIndex)
	require.NoError(t, err)
	assert.Equal(t, "main", name)
	desc, err := pool.Utf8(m.DescriptorIndex)
	require.NoError(t, err)
	assert.Equal(t, MainDescriptor, desc)
	code := m.Code()
	require.NotNil(t, code)
	assert.Equal(t, 1, int(code.MaxLocals))
}
