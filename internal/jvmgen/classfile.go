// Package jvmgen 把 TAC 编译为 JVM class 文件
package jvmgen

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ClassFileMagic class 文件魔数
const ClassFileMagic = 0xCAFEBABE

// 访问标志
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSuper     = 0x0020
	AccSynthetic = 0x1000
)

// JavaVersion 目标 class 文件主版本号
type JavaVersion uint16

const (
	Java6 JavaVersion = 50
	Java7 JavaVersion = 51
	Java8 JavaVersion = 52
)

// ParseJavaVersion 把 6、7、8 映射到主版本号
func ParseJavaVersion(v int) (JavaVersion, error) {
	switch v {
	case 6:
		return Java6, nil
	case 7:
		return Java7, nil
	case 8:
		return Java8, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedTarget, "Java %d", v)
}

// Release 版本对应的 Java 发行号
func (v JavaVersion) Release() int { return int(v) - 44 }

// NeedsStackMap 51 及以上的 class 文件要求 StackMapTable
func (v JavaVersion) NeedsStackMap() bool { return v >= Java7 }

func (v JavaVersion) String() string {
	return fmt.Sprintf("Java %d (%d.0)", v.Release(), uint16(v))
}

// MethodInfo 方法
type MethodInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// FieldInfo 字段
type FieldInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// Code 方法的 Code 属性，没有时返回 nil
func (m *MethodInfo) Code() *CodeAttribute {
	for _, a := range m.Attributes {
		if c, ok := a.(*CodeAttribute); ok {
			return c
		}
	}
	return nil
}

// ClassFile class 文件结构
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*FieldInfo
	Methods      []*MethodInfo
	Attributes   []Attribute
}

// ClassOptions 创建 class 文件的选项
type ClassOptions struct {
	// AllowUnverified 允许不带 StackMapTable 输出 Java 7/8 版本，
	// 这样的 class 需要用 -noverify 运行
	AllowUnverified bool
}

// NewClassFile 创建继承 java/lang/Object 的公共类
func NewClassFile(name string, version JavaVersion, opts ClassOptions) (*ClassFile, error) {
	if version < Java6 || version > Java8 {
		return nil, errors.Wrapf(ErrUnsupportedTarget, "major version %d", uint16(version))
	}
	if version.NeedsStackMap() && !opts.AllowUnverified {
		return nil, errors.Wrapf(ErrStackMapRequired, "%s", version)
	}
	pool := NewConstantPool()
	cf := &ClassFile{
		MajorVersion: uint16(version),
		Pool:         pool,
		AccessFlags:  AccPublic | AccSuper,
	}
	cf.ThisClass = pool.AddClass(name)
	cf.SuperClass = pool.AddClass(ClassObject)
	return cf, nil
}

// SetAccessFlags 设置类访问标志
func (cf *ClassFile) SetAccessFlags(flags uint16) { cf.AccessFlags = flags }

// SetThisClass 设置类名
func (cf *ClassFile) SetThisClass(name string) { cf.ThisClass = cf.Pool.AddClass(name) }

// SetSuperClass 设置父类
func (cf *ClassFile) SetSuperClass(name string) { cf.SuperClass = cf.Pool.AddClass(name) }

// AddMethod 添加方法
func (cf *ClassFile) AddMethod(flags uint16, name, desc string, attrs ...Attribute) *MethodInfo {
	m := &MethodInfo{
		AccessFlags:     flags,
		NameIndex:       cf.Pool.AddUtf8(name),
		DescriptorIndex: cf.Pool.AddUtf8(desc),
		Attributes:      attrs,
	}
	cf.Methods = append(cf.Methods, m)
	return m
}

// AddAttribute 添加类属性
func (cf *ClassFile) AddAttribute(a Attribute) { cf.Attributes = append(cf.Attributes, a) }

// Name 类名
func (cf *ClassFile) Name() string {
	name, _ := cf.Pool.ClassName(cf.ThisClass)
	return name
}

// Method 按名字查找方法
func (cf *ClassFile) Method(name string) (*MethodInfo, string, bool) {
	for _, m := range cf.Methods {
		n, _ := cf.Pool.Utf8(m.NameIndex)
		if n == name {
			desc, _ := cf.Pool.Utf8(m.DescriptorIndex)
			return m, desc, true
		}
	}
	return nil, "", false
}

// SourceFile 源文件名，没有 SourceFile 属性时为空
func (cf *ClassFile) SourceFile() string {
	for _, a := range cf.Attributes {
		if sf, ok := a.(*SourceFileAttribute); ok {
			name, _ := cf.Pool.Utf8(sf.SourceFileIndex)
			return name
		}
	}
	return ""
}

// ToBytes 按 JVM 规范的顺序序列化
func (cf *ClassFile) ToBytes() ([]byte, error) {
	w := NewByteWriter()
	w.WriteU32(ClassFileMagic)
	w.WriteU16(cf.MinorVersion)
	w.WriteU16(cf.MajorVersion)

	// 方法和属性体先序列化，保证所有常量都已进入常量池
	body := NewByteWriter()
	body.WriteU16(cf.AccessFlags)
	body.WriteU16(cf.ThisClass)
	body.WriteU16(cf.SuperClass)
	body.WriteU16(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		body.WriteU16(i)
	}
	if len(cf.Fields) > math.MaxUint16 || len(cf.Methods) > math.MaxUint16 {
		return nil, errors.New("too many members")
	}
	body.WriteU16(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		if err := writeMember(body, f.AccessFlags, f.NameIndex, f.DescriptorIndex, f.Attributes); err != nil {
			return nil, errors.Wrapf(err, "field %s", cf.Pool.Describe(f.NameIndex))
		}
	}
	body.WriteU16(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		if err := writeMember(body, m.AccessFlags, m.NameIndex, m.DescriptorIndex, m.Attributes); err != nil {
			return nil, errors.Wrapf(err, "method %s", cf.Pool.Describe(m.NameIndex))
		}
	}
	if err := writeAttributes(body, cf.Attributes); err != nil {
		return nil, errors.Wrap(err, "class attributes")
	}

	if err := cf.Pool.Write(w); err != nil {
		return nil, err
	}
	w.WriteBytes(body.Bytes())
	return w.Bytes(), nil
}

func writeMember(w *ByteWriter, flags, name, desc uint16, attrs []Attribute) error {
	w.WriteU16(flags)
	w.WriteU16(name)
	w.WriteU16(desc)
	return writeAttributes(w, attrs)
}

// Parse 读取 class 文件；常量池下标与写出时一致
func Parse(data []byte) (*ClassFile, error) {
	r := NewByteReader(data)
	if magic := r.U32(); magic != ClassFileMagic {
		if r.Err() != nil {
			return nil, errors.Wrap(ErrMalformedClass, r.Err().Error())
		}
		return nil, errors.Wrapf(ErrMalformedClass, "bad magic 0x%08X", magic)
	}
	cf := &ClassFile{}
	cf.MinorVersion = r.U16()
	cf.MajorVersion = r.U16()

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool
	cf.AccessFlags = r.U16()
	cf.ThisClass = r.U16()
	cf.SuperClass = r.U16()
	n := int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.U16())
	}

	n = int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		f := &FieldInfo{AccessFlags: r.U16(), NameIndex: r.U16(), DescriptorIndex: r.U16()}
		if f.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, errors.Wrapf(ErrMalformedClass, "field %d: %v", i, err)
		}
		cf.Fields = append(cf.Fields, f)
	}
	n = int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		m := &MethodInfo{AccessFlags: r.U16(), NameIndex: r.U16(), DescriptorIndex: r.U16()}
		if m.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, errors.Wrapf(ErrMalformedClass, "method %d: %v", i, err)
		}
		cf.Methods = append(cf.Methods, m)
	}
	if cf.Attributes, err = readAttributes(r, pool); err != nil {
		return nil, errors.Wrapf(ErrMalformedClass, "class attributes: %v", err)
	}
	if r.Err() != nil {
		return nil, errors.Wrap(ErrMalformedClass, r.Err().Error())
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrMalformedClass, "%d trailing bytes", r.Remaining())
	}
	return cf, nil
}

func readPool(r *ByteReader) (*ConstantPool, error) {
	pool := NewConstantPool()
	count := int(r.U16())
	for i := 1; i < count; i++ {
		var c Constant
		switch tag := r.U8(); tag {
		case ConstantUtf8:
			s, err := decodeModifiedUTF8(r.Bytes(int(r.U16())))
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedClass, "constant #%d: %v", i, err)
			}
			c = Utf8Info{Value: s}
		case ConstantInteger:
			c = IntegerInfo{Value: int32(r.U32())}
		case ConstantFloat:
			c = FloatInfo{Bits: r.U32()}
		case ConstantLong:
			c = LongInfo{Value: int64(r.U64())}
		case ConstantDouble:
			c = DoubleInfo{Bits: r.U64()}
		case ConstantClass:
			c = ClassInfo{NameIndex: r.U16()}
		case ConstantString:
			c = StringInfo{StringIndex: r.U16()}
		case ConstantFieldref:
			c = FieldrefInfo{ClassIndex: r.U16(), NameAndTypeIndex: r.U16()}
		case ConstantMethodref:
			c = MethodrefInfo{ClassIndex: r.U16(), NameAndTypeIndex: r.U16()}
		case ConstantInterfaceMethodref:
			c = InterfaceMethodrefInfo{ClassIndex: r.U16(), NameAndTypeIndex: r.U16()}
		case ConstantNameAndType:
			c = NameAndTypeInfo{NameIndex: r.U16(), DescriptorIndex: r.U16()}
		default:
			if r.Err() != nil {
				return nil, errors.Wrap(ErrMalformedClass, r.Err().Error())
			}
			return nil, errors.Wrapf(ErrMalformedClass, "constant #%d has unsupported tag %d", i, tag)
		}
		if r.Err() != nil {
			return nil, errors.Wrap(ErrMalformedClass, r.Err().Error())
		}
		pool.appendRaw(c)
		if isWide(c) {
			i++
		}
	}
	return pool, nil
}

// appendRaw 按文件中的顺序追加条目，重复条目保留原下标
func (p *ConstantPool) appendRaw(c Constant) {
	p.entries = append(p.entries, c)
	idx := uint16(len(p.entries))
	if isWide(c) {
		p.entries = append(p.entries, nil)
	}
	if _, ok := p.index[c]; !ok {
		p.index[c] = idx
	}
}
