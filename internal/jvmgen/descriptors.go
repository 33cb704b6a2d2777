package jvmgen

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

// 运行时用到的类
const (
	ClassObject      = "java/lang/Object"
	ClassString      = "java/lang/String"
	ClassSystem      = "java/lang/System"
	ClassPrintStream = "java/io/PrintStream"
)

// Descriptor Kotlin 类型对应的字段描述符，未知类型按 Int 处理
func Descriptor(t ast.Type) string {
	switch t {
	case ast.TypeDouble:
		return "D"
	case ast.TypeString:
		return "L" + ClassString + ";"
	case ast.TypeBoolean:
		return "Z"
	case ast.TypeUnit:
		return "V"
	case ast.TypeIntArray:
		return "[I"
	case ast.TypeDoubleArray:
		return "[D"
	}
	return "I"
}

// MethodDescriptor 方法描述符，如 (ID)Ljava/lang/String;
func MethodDescriptor(params []ast.Type, result ast.Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(Descriptor(p))
	}
	sb.WriteByte(')')
	sb.WriteString(Descriptor(result))
	return sb.String()
}

// TypeOfDescriptor 字段描述符对应的 Kotlin 类型
func TypeOfDescriptor(desc string) (ast.Type, error) {
	switch desc {
	case "I", "B", "S", "C":
		return ast.TypeInt, nil
	case "Z":
		return ast.TypeBoolean, nil
	case "D":
		return ast.TypeDouble, nil
	case "V":
		return ast.TypeUnit, nil
	case "[I":
		return ast.TypeIntArray, nil
	case "[D":
		return ast.TypeDoubleArray, nil
	case "Ljava/lang/String;":
		return ast.TypeString, nil
	}
	return ast.TypeUnknown, errors.Errorf("no Kotlin type for descriptor %q", desc)
}

// SlotSize 字段描述符占用的栈槽或局部变量槽数
func SlotSize(desc string) int {
	switch desc {
	case "V":
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// ParseMethodDescriptor 拆分方法描述符为参数描述符列表和返回描述符
func ParseMethodDescriptor(desc string) (params []string, result string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", errors.Errorf("bad method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldLen(desc[i:])
		if err != nil {
			return nil, "", errors.Wrapf(err, "method descriptor %q", desc)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", errors.Errorf("bad method descriptor %q", desc)
	}
	result = desc[i+1:]
	if result != "V" {
		if n, err := fieldLen(result); err != nil || n != len(result) {
			return nil, "", errors.Errorf("bad return type in %q", desc)
		}
	}
	return params, result, nil
}

// fieldLen 字符串开头一个字段描述符的长度
func fieldLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, errors.New("truncated descriptor")
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return 0, errors.New("unterminated class descriptor")
		}
		return i + end + 1, nil
	}
	return 0, errors.Errorf("bad descriptor character %q", s[i])
}

// MethodSlots 方法参数和返回值占用的栈槽数
func MethodSlots(desc string) (args, ret int, err error) {
	params, result, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range params {
		args += SlotSize(p)
	}
	return args, SlotSize(result), nil
}
