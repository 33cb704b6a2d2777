package jvmgen

import (
	"math"

	"github.com/pkg/errors"
)

// 属性名
const (
	AttrCode               = "Code"
	AttrLineNumberTable    = "LineNumberTable"
	AttrLocalVariableTable = "LocalVariableTable"
	AttrSourceFile         = "SourceFile"
)

// Attribute class、方法或 Code 上的属性
type Attribute interface {
	// AttrNameIndex 属性名在常量池中的下标
	AttrNameIndex() uint16
	// Info 属性体（不含名字和长度）
	Info() ([]byte, error)
}

// writeAttribute 写入 name_index、length 和属性体
func writeAttribute(w *ByteWriter, a Attribute) error {
	info, err := a.Info()
	if err != nil {
		return err
	}
	w.WriteU16(a.AttrNameIndex())
	w.WriteU32(uint32(len(info)))
	w.WriteBytes(info)
	return nil
}

func writeAttributes(w *ByteWriter, attrs []Attribute) error {
	if len(attrs) > math.MaxUint16 {
		return errors.Errorf("too many attributes: %d", len(attrs))
	}
	w.WriteU16(uint16(len(attrs)))
	for _, a := range attrs {
		if err := writeAttribute(w, a); err != nil {
			return err
		}
	}
	return nil
}

// RawAttribute 未解释的属性，读取 class 文件时遇到未知属性使用
type RawAttribute struct {
	NameIndex uint16
	Data      []byte
}

func (a *RawAttribute) AttrNameIndex() uint16 { return a.NameIndex }
func (a *RawAttribute) Info() ([]byte, error) { return a.Data, nil }

// ExceptionEntry 异常表条目
type ExceptionEntry struct {
	StartPC, EndPC, HandlerPC, CatchType uint16
}

// CodeAttribute 方法体
type CodeAttribute struct {
	NameIndex      uint16
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionEntry
	Attributes     []Attribute
}

// NewCodeAttribute 创建 Code 属性
func NewCodeAttribute(pool *ConstantPool, maxStack, maxLocals int, code []byte, attrs ...Attribute) *CodeAttribute {
	return &CodeAttribute{
		NameIndex:  pool.AddUtf8(AttrCode),
		MaxStack:   uint16(maxStack),
		MaxLocals:  uint16(maxLocals),
		Code:       code,
		Attributes: attrs,
	}
}

func (a *CodeAttribute) AttrNameIndex() uint16 { return a.NameIndex }

func (a *CodeAttribute) Info() ([]byte, error) {
	if len(a.Code) == 0 {
		return nil, errors.New("empty method code")
	}
	if len(a.Code) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrCodeTooLarge, "code length %d", len(a.Code))
	}
	w := NewByteWriter()
	w.WriteU16(a.MaxStack)
	w.WriteU16(a.MaxLocals)
	w.WriteU32(uint32(len(a.Code)))
	w.WriteBytes(a.Code)
	w.WriteU16(uint16(len(a.ExceptionTable)))
	for _, e := range a.ExceptionTable {
		w.WriteU16(e.StartPC)
		w.WriteU16(e.EndPC)
		w.WriteU16(e.HandlerPC)
		w.WriteU16(e.CatchType)
	}
	if err := writeAttributes(w, a.Attributes); err != nil {
		return nil, errors.Wrap(err, "code attributes")
	}
	return w.Bytes(), nil
}

// LineNumber 字节码偏移到源码行
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LineNumberTable 行号表
type LineNumberTable struct {
	NameIndex uint16
	Entries   []LineNumber
}

// NewLineNumberTable 创建行号表
func NewLineNumberTable(pool *ConstantPool, entries []LineNumber) *LineNumberTable {
	return &LineNumberTable{NameIndex: pool.AddUtf8(AttrLineNumberTable), Entries: entries}
}

func (a *LineNumberTable) AttrNameIndex() uint16 { return a.NameIndex }

func (a *LineNumberTable) Info() ([]byte, error) {
	w := NewByteWriter()
	w.WriteU16(uint16(len(a.Entries)))
	for _, e := range a.Entries {
		w.WriteU16(e.StartPC)
		w.WriteU16(e.Line)
	}
	return w.Bytes(), nil
}

// LocalVariable 局部变量表条目
type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// LocalVariableTable 局部变量表
type LocalVariableTable struct {
	NameIndex uint16
	Entries   []LocalVariable
}

// NewLocalVariableTable 按变量的生存范围登记局部变量
func NewLocalVariableTable(pool *ConstantPool, locals []Local) *LocalVariableTable {
	t := &LocalVariableTable{NameIndex: pool.AddUtf8(AttrLocalVariableTable)}
	for _, l := range locals {
		t.Entries = append(t.Entries, LocalVariable{
			StartPC:         uint16(l.StartPC),
			Length:          uint16(l.Length),
			NameIndex:       pool.AddUtf8(l.Name),
			DescriptorIndex: pool.AddUtf8(l.Descriptor()),
			Index:           uint16(l.Slot),
		})
	}
	return t
}

func (a *LocalVariableTable) AttrNameIndex() uint16 { return a.NameIndex }

func (a *LocalVariableTable) Info() ([]byte, error) {
	w := NewByteWriter()
	w.WriteU16(uint16(len(a.Entries)))
	for _, e := range a.Entries {
		w.WriteU16(e.StartPC)
		w.WriteU16(e.Length)
		w.WriteU16(e.NameIndex)
		w.WriteU16(e.DescriptorIndex)
		w.WriteU16(e.Index)
	}
	return w.Bytes(), nil
}

// SourceFileAttribute 源文件名
type SourceFileAttribute struct {
	NameIndex       uint16
	SourceFileIndex uint16
}

// NewSourceFile 创建 SourceFile 属性
func NewSourceFile(pool *ConstantPool, name string) *SourceFileAttribute {
	return &SourceFileAttribute{
		NameIndex:       pool.AddUtf8(AttrSourceFile),
		SourceFileIndex: pool.AddUtf8(name),
	}
}

func (a *SourceFileAttribute) AttrNameIndex() uint16 { return a.NameIndex }

func (a *SourceFileAttribute) Info() ([]byte, error) {
	w := NewByteWriter()
	w.WriteU16(a.SourceFileIndex)
	return w.Bytes(), nil
}

// parseAttribute 按名字解码已知属性，其他保留原始字节
func parseAttribute(pool *ConstantPool, nameIdx uint16, data []byte) (Attribute, error) {
	name, err := pool.Utf8(nameIdx)
	if err != nil {
		return nil, err
	}
	r := NewByteReader(data)
	var attr Attribute
	switch name {
	case AttrCode:
		a := &CodeAttribute{NameIndex: nameIdx}
		a.MaxStack = r.U16()
		a.MaxLocals = r.U16()
		a.Code = r.Bytes(int(r.U32()))
		n := int(r.U16())
		for i := 0; i < n && r.Err() == nil; i++ {
			a.ExceptionTable = append(a.ExceptionTable, ExceptionEntry{r.U16(), r.U16(), r.U16(), r.U16()})
		}
		if a.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, errors.Wrap(err, "code attributes")
		}
		attr = a
	case AttrLineNumberTable:
		a := &LineNumberTable{NameIndex: nameIdx}
		n := int(r.U16())
		for i := 0; i < n && r.Err() == nil; i++ {
			a.Entries = append(a.Entries, LineNumber{StartPC: r.U16(), Line: r.U16()})
		}
		attr = a
	case AttrLocalVariableTable:
		a := &LocalVariableTable{NameIndex: nameIdx}
		n := int(r.U16())
		for i := 0; i < n && r.Err() == nil; i++ {
			a.Entries = append(a.Entries, LocalVariable{r.U16(), r.U16(), r.U16(), r.U16(), r.U16()})
		}
		attr = a
	case AttrSourceFile:
		attr = &SourceFileAttribute{NameIndex: nameIdx, SourceFileIndex: r.U16()}
	default:
		return &RawAttribute{NameIndex: nameIdx, Data: data}, nil
	}
	if r.Err() != nil {
		return nil, errors.Wrapf(r.Err(), "attribute %s", name)
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrMalformedClass, "attribute %s has %d trailing bytes", name, r.Remaining())
	}
	return attr, nil
}

func readAttributes(r *ByteReader, pool *ConstantPool) ([]Attribute, error) {
	n := int(r.U16())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n; i++ {
		nameIdx := r.U16()
		data := r.Bytes(int(r.U32()))
		if r.Err() != nil {
			return nil, r.Err()
		}
		a, err := parseAttribute(pool, nameIdx, data)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, r.Err()
}
