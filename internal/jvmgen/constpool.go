package jvmgen

import (
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// 常量池标签
const (
	ConstantUtf8               = 1
	ConstantInteger            = 3
	ConstantFloat              = 4
	ConstantLong               = 5
	ConstantDouble             = 6
	ConstantClass              = 7
	ConstantString             = 8
	ConstantFieldref           = 9
	ConstantMethodref          = 10
	ConstantInterfaceMethodref = 11
	ConstantNameAndType        = 12
)

// 常量池最多 65535 项（下标从 1 开始）
const maxPoolSlots = 65534

// Constant 常量池条目。实现都是可比较的值类型，可直接作为去重的键
type Constant interface {
	Tag() uint8
	write(w *ByteWriter) error
}

// Utf8Info CONSTANT_Utf8
type Utf8Info struct{ Value string }

// IntegerInfo CONSTANT_Integer
type IntegerInfo struct{ Value int32 }

// FloatInfo CONSTANT_Float，按位保存以区分 -0.0 和 NaN
type FloatInfo struct{ Bits uint32 }

// LongInfo CONSTANT_Long，占两个槽位
type LongInfo struct{ Value int64 }

// DoubleInfo CONSTANT_Double，占两个槽位
type DoubleInfo struct{ Bits uint64 }

// ClassInfo CONSTANT_Class
type ClassInfo struct{ NameIndex uint16 }

// StringInfo CONSTANT_String
type StringInfo struct{ StringIndex uint16 }

// FieldrefInfo CONSTANT_Fieldref
type FieldrefInfo struct{ ClassIndex, NameAndTypeIndex uint16 }

// MethodrefInfo CONSTANT_Methodref
type MethodrefInfo struct{ ClassIndex, NameAndTypeIndex uint16 }

// InterfaceMethodrefInfo CONSTANT_InterfaceMethodref
type InterfaceMethodrefInfo struct{ ClassIndex, NameAndTypeIndex uint16 }

// NameAndTypeInfo CONSTANT_NameAndType
type NameAndTypeInfo struct{ NameIndex, DescriptorIndex uint16 }

func (Utf8Info) Tag() uint8               { return ConstantUtf8 }
func (IntegerInfo) Tag() uint8            { return ConstantInteger }
func (FloatInfo) Tag() uint8              { return ConstantFloat }
func (LongInfo) Tag() uint8               { return ConstantLong }
func (DoubleInfo) Tag() uint8             { return ConstantDouble }
func (ClassInfo) Tag() uint8              { return ConstantClass }
func (StringInfo) Tag() uint8             { return ConstantString }
func (FieldrefInfo) Tag() uint8           { return ConstantFieldref }
func (MethodrefInfo) Tag() uint8          { return ConstantMethodref }
func (InterfaceMethodrefInfo) Tag() uint8 { return ConstantInterfaceMethodref }
func (NameAndTypeInfo) Tag() uint8        { return ConstantNameAndType }

func (c Utf8Info) write(w *ByteWriter) error {
	b := encodeModifiedUTF8(c.Value)
	if len(b) > math.MaxUint16 {
		return errors.Errorf("utf8 constant too long: %d bytes", len(b))
	}
	w.WriteU8(ConstantUtf8)
	w.WriteU16(uint16(len(b)))
	w.WriteBytes(b)
	return nil
}

func (c IntegerInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantInteger)
	w.WriteU32(uint32(c.Value))
	return nil
}

func (c FloatInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantFloat)
	w.WriteU32(c.Bits)
	return nil
}

func (c LongInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantLong)
	w.WriteU64(uint64(c.Value))
	return nil
}

func (c DoubleInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantDouble)
	w.WriteU64(c.Bits)
	return nil
}

func (c ClassInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantClass)
	w.WriteU16(c.NameIndex)
	return nil
}

func (c StringInfo) write(w *ByteWriter) error {
	w.WriteU8(ConstantString)
	w.WriteU16(c.StringIndex)
	return nil
}

func writeRef(w *ByteWriter, tag uint8, a, b uint16) error {
	w.WriteU8(tag)
	w.WriteU16(a)
	w.WriteU16(b)
	return nil
}

func (c FieldrefInfo) write(w *ByteWriter) error {
	return writeRef(w, ConstantFieldref, c.ClassIndex, c.NameAndTypeIndex)
}

func (c MethodrefInfo) write(w *ByteWriter) error {
	return writeRef(w, ConstantMethodref, c.ClassIndex, c.NameAndTypeIndex)
}

func (c InterfaceMethodrefInfo) write(w *ByteWriter) error {
	return writeRef(w, ConstantInterfaceMethodref, c.ClassIndex, c.NameAndTypeIndex)
}

func (c NameAndTypeInfo) write(w *ByteWriter) error {
	return writeRef(w, ConstantNameAndType, c.NameIndex, c.DescriptorIndex)
}

// isWide Long 和 Double 占两个槽位
func isWide(c Constant) bool {
	tag := c.Tag()
	return tag == ConstantLong || tag == ConstantDouble
}

// ConstantPool 去重的常量池。entries[i] 对应下标 i+1，
// 两槽常量的第二个槽位是 nil
type ConstantPool struct {
	entries  []Constant
	index    map[Constant]uint16
	overflow bool
}

// NewConstantPool 创建空常量池
func NewConstantPool() *ConstantPool {
	return &ConstantPool{index: make(map[Constant]uint16)}
}

// Add 添加条目，相同条目返回已有下标。超出容量时返回 0，
// 错误推迟到 Write 时报告
func (p *ConstantPool) Add(c Constant) uint16 {
	if idx, ok := p.index[c]; ok {
		return idx
	}
	need := 1
	if isWide(c) {
		need = 2
	}
	if len(p.entries)+need > maxPoolSlots {
		p.overflow = true
		return 0
	}
	p.entries = append(p.entries, c)
	idx := uint16(len(p.entries))
	if need == 2 {
		p.entries = append(p.entries, nil)
	}
	p.index[c] = idx
	return idx
}

// AddUtf8 添加 UTF-8 字符串
func (p *ConstantPool) AddUtf8(s string) uint16 {
	return p.Add(Utf8Info{Value: s})
}

// AddInteger 添加 int 常量
func (p *ConstantPool) AddInteger(v int32) uint16 {
	return p.Add(IntegerInfo{Value: v})
}

// AddFloat 添加 float 常量
func (p *ConstantPool) AddFloat(v float32) uint16 {
	return p.Add(FloatInfo{Bits: math.Float32bits(v)})
}

// AddLong 添加 long 常量
func (p *ConstantPool) AddLong(v int64) uint16 {
	return p.Add(LongInfo{Value: v})
}

// AddDouble 添加 double 常量
func (p *ConstantPool) AddDouble(v float64) uint16 {
	return p.Add(DoubleInfo{Bits: math.Float64bits(v)})
}

// AddClass 添加类引用，name 为内部名称（如 java/lang/String）
func (p *ConstantPool) AddClass(name string) uint16 {
	return p.Add(ClassInfo{NameIndex: p.AddUtf8(name)})
}

// AddString 添加字符串常量
func (p *ConstantPool) AddString(s string) uint16 {
	return p.Add(StringInfo{StringIndex: p.AddUtf8(s)})
}

// AddNameAndType 添加名字和描述符
func (p *ConstantPool) AddNameAndType(name, desc string) uint16 {
	n := p.AddUtf8(name)
	d := p.AddUtf8(desc)
	return p.Add(NameAndTypeInfo{NameIndex: n, DescriptorIndex: d})
}

// AddFieldref 添加字段引用
func (p *ConstantPool) AddFieldref(class, name, desc string) uint16 {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, desc)
	return p.Add(FieldrefInfo{ClassIndex: c, NameAndTypeIndex: nt})
}

// AddMethodref 添加方法引用
func (p *ConstantPool) AddMethodref(class, name, desc string) uint16 {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, desc)
	return p.Add(MethodrefInfo{ClassIndex: c, NameAndTypeIndex: nt})
}

// AddInterfaceMethodref 添加接口方法引用
func (p *ConstantPool) AddInterfaceMethodref(class, name, desc string) uint16 {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, desc)
	return p.Add(InterfaceMethodrefInfo{ClassIndex: c, NameAndTypeIndex: nt})
}

// Len 已占用的槽位数
func (p *ConstantPool) Len() int { return len(p.entries) }

// Count 写入 class 文件的 constant_pool_count
func (p *ConstantPool) Count() int { return len(p.entries) + 1 }

// Overflowed 是否有条目因容量不足被丢弃
func (p *ConstantPool) Overflowed() bool { return p.overflow }

// Get 按下标取条目；下标 0、越界和两槽常量的第二槽返回 nil
func (p *ConstantPool) Get(i uint16) Constant {
	if i == 0 || int(i) > len(p.entries) {
		return nil
	}
	return p.entries[i-1]
}

// Utf8 取 UTF-8 条目的值
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, ok := p.Get(i).(Utf8Info)
	if !ok {
		return "", errors.Errorf("constant #%d is not Utf8", i)
	}
	return c.Value, nil
}

// ClassName 取 Class 条目的名字
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, ok := p.Get(i).(ClassInfo)
	if !ok {
		return "", errors.Errorf("constant #%d is not Class", i)
	}
	return p.Utf8(c.NameIndex)
}

// NameAndType 取 NameAndType 条目的名字和描述符
func (p *ConstantPool) NameAndType(i uint16) (name, desc string, err error) {
	c, ok := p.Get(i).(NameAndTypeInfo)
	if !ok {
		return "", "", errors.Errorf("constant #%d is not NameAndType", i)
	}
	if name, err = p.Utf8(c.NameIndex); err != nil {
		return "", "", err
	}
	desc, err = p.Utf8(c.DescriptorIndex)
	return name, desc, err
}

// MemberRef 字段或方法引用解析后的结果
type MemberRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (r MemberRef) String() string {
	return r.Class + "." + r.Name + ":" + r.Descriptor
}

// Ref 解析 Fieldref/Methodref/InterfaceMethodref
func (p *ConstantPool) Ref(i uint16) (MemberRef, error) {
	var classIdx, ntIdx uint16
	switch c := p.Get(i).(type) {
	case FieldrefInfo:
		classIdx, ntIdx = c.ClassIndex, c.NameAndTypeIndex
	case MethodrefInfo:
		classIdx, ntIdx = c.ClassIndex, c.NameAndTypeIndex
	case InterfaceMethodrefInfo:
		classIdx, ntIdx = c.ClassIndex, c.NameAndTypeIndex
	default:
		return MemberRef{}, errors.Errorf("constant #%d is not a member reference", i)
	}
	class, err := p.ClassName(classIdx)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(ntIdx)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Class: class, Name: name, Descriptor: desc}, nil
}

// Describe 条目的可读形式，供反汇编使用
func (p *ConstantPool) Describe(i uint16) string {
	switch c := p.Get(i).(type) {
	case Utf8Info:
		return c.Value
	case IntegerInfo:
		return fmt.Sprintf("%d", c.Value)
	case FloatInfo:
		return fmt.Sprintf("%gf", math.Float32frombits(c.Bits))
	case LongInfo:
		return fmt.Sprintf("%dl", c.Value)
	case DoubleInfo:
		return fmt.Sprintf("%gd", math.Float64frombits(c.Bits))
	case ClassInfo:
		name, _ := p.Utf8(c.NameIndex)
		return name
	case StringInfo:
		s, _ := p.Utf8(c.StringIndex)
		return s
	case NameAndTypeInfo:
		name, desc, _ := p.NameAndType(i)
		return name + ":" + desc
	case FieldrefInfo, MethodrefInfo, InterfaceMethodrefInfo:
		ref, err := p.Ref(i)
		if err != nil {
			return "?"
		}
		return ref.String()
	}
	return "?"
}

// Write 写入 constant_pool_count 和所有条目
func (p *ConstantPool) Write(w *ByteWriter) error {
	if p.overflow {
		return errors.Wrapf(ErrPoolOverflow, "more than %d slots", maxPoolSlots)
	}
	w.WriteU16(uint16(p.Count()))
	for i, c := range p.entries {
		if c == nil {
			continue
		}
		if err := c.write(w); err != nil {
			return errors.Wrapf(err, "constant #%d", i+1)
		}
	}
	return nil
}

// encodeModifiedUTF8 JVM 使用的修改版 UTF-8：
// U+0000 写成两字节，增补平面字符写成代理对
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit(out, hi)
			out = appendUnit(out, lo)
		default:
			out = utf8.AppendRune(out, r)
		}
	}
	return out
}

// appendUnit 把 UTF-16 代码单元按三字节形式写出
func appendUnit(out []byte, u rune) []byte {
	return append(out,
		byte(0xE0|(u>>12)&0x0F),
		byte(0x80|(u>>6)&0x3F),
		byte(0x80|u&0x3F))
}

// decodeModifiedUTF8 encodeModifiedUTF8 的逆过程
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) {
				return "", errors.New("truncated utf8 sequence")
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) {
				return "", errors.New("truncated utf8 sequence")
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", errors.Errorf("invalid utf8 byte 0x%02x", c)
		}
	}
	return string(utf16.Decode(units)), nil
}
