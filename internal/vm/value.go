package vm

import (
	"fmt"
	"io"
	"strconv"

	"github.com/tangzhangming/kforge/internal/jvmgen"
)

// ============================================================================
// 值表示
// ============================================================================

// Kind 槽中值的类别
type Kind uint8

const (
	KindTop    Kind = iota // double 的第二个槽，或从未写入的局部变量
	KindInt                // int/boolean
	KindDouble             // double 的第一个槽
	KindRef                // 引用（nil 表示 null）
)

var kindNames = [...]string{
	KindTop:    "top",
	KindInt:    "int",
	KindDouble: "double",
	KindRef:    "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value 操作数栈或局部变量表中的一个槽。double 占两个槽，第二个是 top。
type Value struct {
	K Kind
	I int32
	D float64
	R interface{}
}

// Null 空引用
var Null = Value{K: KindRef}

var top = Value{K: KindTop}

// IntValue 创建 int 值
func IntValue(v int32) Value { return Value{K: KindInt, I: v} }

// DoubleValue 创建 double 值
func DoubleValue(v float64) Value { return Value{K: KindDouble, D: v} }

// RefValue 创建引用值
func RefValue(r interface{}) Value { return Value{K: KindRef, R: r} }

func (v Value) String() string {
	switch v.K {
	case KindInt:
		return strconv.Itoa(int(v.I))
	case KindDouble:
		return formatDouble(v.D)
	case KindRef:
		if v.R == nil {
			return "null"
		}
		if s, ok := v.R.(string); ok {
			return strconv.Quote(s)
		}
		return fmt.Sprint(v.R)
	}
	return "top"
}

// ============================================================================
// 堆对象
// ============================================================================

// Array 数组。NEWARRAY 创建的基本类型数组用 Elem，ANEWARRAY 创建的引用数组用 Class
type Array struct {
	Elem    int    // NEWARRAY 类型代码
	Class   string // 引用数组的元素类，如 java/lang/String 或 [I
	Ints    []int32
	Doubles []float64
	Refs    []interface{}
	id      int
}

func newArray(elem, n, id int) *Array {
	a := &Array{Elem: elem, id: id}
	if elem == jvmgen.TypeDouble {
		a.Doubles = make([]float64, n)
	} else {
		a.Ints = make([]int32, n)
	}
	return a
}

func newRefArray(class string, n, id int) *Array {
	return &Array{Class: class, Refs: make([]interface{}, n), id: id}
}

// Len 数组长度
func (a *Array) Len() int {
	switch {
	case a.Refs != nil:
		return len(a.Refs)
	case a.Elem == jvmgen.TypeDouble:
		return len(a.Doubles)
	}
	return len(a.Ints)
}

// Descriptor 数组的类型描述符
func (a *Array) Descriptor() string {
	switch {
	case a.Class != "" && a.Class[0] == '[':
		return "[" + a.Class
	case a.Class != "":
		return "[L" + a.Class + ";"
	case a.Elem == jvmgen.TypeDouble:
		return "[D"
	case a.Elem == jvmgen.TypeBoolean:
		return "[Z"
	}
	return "[I"
}

// String Object.toString 的形式：类型加标识哈希
func (a *Array) String() string {
	return fmt.Sprintf("%s@%x", a.Descriptor(), 0x1b6d3586+a.id)
}

// PrintStream java.io.PrintStream 的替身
type PrintStream struct {
	w io.Writer
}

func (p *PrintStream) String() string { return "java.io.PrintStream" }
