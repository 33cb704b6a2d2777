package ast

import "fmt"

// Type 前端解析后的静态类型
type Type uint8

const (
	TypeUnknown Type = iota
	TypeInt
	TypeDouble
	TypeString
	TypeBoolean
	TypeUnit
	TypeIntArray
	TypeDoubleArray
)

var typeNames = [...]string{
	TypeUnknown:     "Unknown",
	TypeInt:         "Int",
	TypeDouble:      "Double",
	TypeString:      "String",
	TypeBoolean:     "Boolean",
	TypeUnit:        "Unit",
	TypeIntArray:    "IntArray",
	TypeDoubleArray: "DoubleArray",
}

// String 返回 Kotlin 写法的类型名
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType 解析 Kotlin 类型名
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	if s == "" {
		return TypeUnknown, nil
	}
	return TypeUnknown, fmt.Errorf("unknown type %q", s)
}

// IsArray 是否为数组类型
func (t Type) IsArray() bool {
	return t == TypeIntArray || t == TypeDoubleArray
}

// Elem 数组元素类型，非数组返回 TypeUnknown
func (t Type) Elem() Type {
	switch t {
	case TypeIntArray:
		return TypeInt
	case TypeDoubleArray:
		return TypeDouble
	}
	return TypeUnknown
}

// ArrayOf 元素类型对应的数组类型
func ArrayOf(elem Type) Type {
	switch elem {
	case TypeInt:
		return TypeIntArray
	case TypeDouble:
		return TypeDoubleArray
	}
	return TypeUnknown
}

// IsWide 是否占用两个槽位（JVM category 2）
func (t Type) IsWide() bool {
	return t == TypeDouble
}

// IsReference 是否为引用类型
func (t Type) IsReference() bool {
	return t == TypeString || t.IsArray()
}

// BinaryResult 推导二元运算的结果类型
func BinaryResult(op string, x, y Type) Type {
	switch op {
	case "<", ">", "<=", ">=", "==", "!=", "&&", "||":
		return TypeBoolean
	}
	switch {
	case op == "+" && (x == TypeString || y == TypeString):
		return TypeString
	case x == TypeDouble || y == TypeDouble:
		return TypeDouble
	}
	return TypeInt
}
