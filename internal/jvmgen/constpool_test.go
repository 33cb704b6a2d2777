package jvmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDeduplicates(t *testing.T) {
	p := NewConstantPool()
	a := p.AddUtf8("hello")
	b := p.AddUtf8("hello")
	assert.Equal(t, a, b)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, p.Count())

	s1 := p.AddString("hello")
	s2 := p.AddString("hello")
	assert.Equal(t, s1, s2)
	assert.Equal(t, StringInfo{StringIndex: a}, p.Get(s1))
}

func TestMethodrefCreationOrder(t *testing.T) {
	p := NewConstantPool()
	ref := p.AddMethodref("java/io/PrintStream", "println", "(I)V")

	assert.Equal(t, uint16(6), ref)
	assert.Equal(t, Utf8Info{Value: "java/io/PrintStream"}, p.Get(1))
	assert.Equal(t, ClassInfo{NameIndex: 1}, p.Get(2))
	assert.Equal(t, Utf8Info{Value: "println"}, p.Get(3))
	assert.Equal(t, Utf8Info{Value: "(I)V"}, p.Get(4))
	assert.Equal(t, NameAndTypeInfo{NameIndex: 3, DescriptorIndex: 4}, p.Get(5))
	assert.Equal(t, MethodrefInfo{ClassIndex: 2, NameAndTypeIndex: 5}, p.Get(6))

	r, err := p.Ref(ref)
	require.NoError(t, err)
	assert.Equal(t, "java/io/PrintStream.println:(I)V", r.String())
}

func TestWideConstantsTakeTwoSlots(t *testing.T) {
	p := NewConstantPool()
	d := p.AddDouble(3.5)
	i := p.AddInteger(7)
	l := p.AddLong(1 << 40)
	f := p.AddFloat(1.5)

	assert.Equal(t, uint16(1), d)
	assert.Nil(t, p.Get(2))
	assert.Equal(t, uint16(3), i)
	assert.Equal(t, uint16(4), l)
	assert.Equal(t, uint16(6), f)
	assert.Equal(t, 6, p.Len())
	assert.Equal(t, 7, p.Count())

	// 同值去重，-0.0 和 0.0 不同
	assert.Equal(t, d, p.AddDouble(3.5))
	assert.NotEqual(t, p.AddDouble(0), p.AddDouble(negZero()))
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestPoolOverflow(t *testing.T) {
	p := NewConstantPool()
	for i := 0; i < maxPoolSlots; i++ {
		require.NotZero(t, p.AddInteger(int32(i)))
	}
	assert.Zero(t, p.AddInteger(-1))
	assert.Zero(t, p.AddDouble(1.5))
	assert.True(t, p.Overflowed())

	err := p.Write(NewByteWriter())
	assert.ErrorIs(t, err, ErrPoolOverflow)
}

func TestPoolWrite(t *testing.T) {
	p := NewConstantPool()
	p.AddClass("A")
	p.AddLong(-2)

	w := NewByteWriter()
	require.NoError(t, p.Write(w))
	assert.Equal(t, []byte{
		0x00, 0x05, // count = 4 + 1
		ConstantUtf8, 0x00, 0x01, 'A',
		ConstantClass, 0x00, 0x01,
		ConstantLong, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE,
	}, w.Bytes())
}

func TestModifiedUTF8(t *testing.T) {
	assert.Equal(t, []byte{0xC0, 0x80}, encodeModifiedUTF8("\x00"))
	assert.Equal(t, []byte("abc"), encodeModifiedUTF8("abc"))
	// 增补平面字符编码为两个三字节代理
	assert.Len(t, encodeModifiedUTF8("😀"), 6)

	for _, s := range []string{"", "plain", "a\x00b", "中文", "😀 emoji", "é"} {
		got, err := decodeModifiedUTF8(encodeModifiedUTF8(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := decodeModifiedUTF8([]byte{0xE0, 0x80})
	assert.Error(t, err)
}

func TestPoolDescribe(t *testing.T) {
	p := NewConstantPool()
	f := p.AddFieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	s := p.AddString("hi")
	i := p.AddInteger(40000)

	assert.Equal(t, "java/lang/System.out:Ljava/io/PrintStream;", p.Describe(f))
	assert.Equal(t, "hi", p.Describe(s))
	assert.Equal(t, "40000", p.Describe(i))
	assert.Equal(t, "?", p.Describe(999))

	_, err := p.Utf8(s)
	assert.Error(t, err)
	_, err = p.ClassName(0)
	assert.Error(t, err)
}
