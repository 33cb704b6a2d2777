package jvmgen

import (
	"fmt"
	"strings"
)

var tagNames = map[uint8]string{
	ConstantUtf8:               "Utf8",
	ConstantInteger:            "Integer",
	ConstantFloat:              "Float",
	ConstantLong:               "Long",
	ConstantDouble:             "Double",
	ConstantClass:              "Class",
	ConstantString:             "String",
	ConstantFieldref:           "Fieldref",
	ConstantMethodref:          "Methodref",
	ConstantInterfaceMethodref: "InterfaceMethodref",
	ConstantNameAndType:        "NameAndType",
}

// Disassemble javap -v 风格的文本
func Disassemble(cf *ClassFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s\n", cf.Name())
	fmt.Fprintf(&sb, "  minor version: %d\n", cf.MinorVersion)
	fmt.Fprintf(&sb, "  major version: %d\n", cf.MajorVersion)
	fmt.Fprintf(&sb, "  flags: %s\n", classFlags(cf.AccessFlags))
	if super, err := cf.Pool.ClassName(cf.SuperClass); err == nil {
		fmt.Fprintf(&sb, "  super_class: #%d // %s\n", cf.SuperClass, super)
	}

	sb.WriteString("Constant pool:\n")
	for i := 1; i <= cf.Pool.Len(); i++ {
		c := cf.Pool.Get(uint16(i))
		if c == nil {
			continue
		}
		fmt.Fprintf(&sb, "%6s = %-18s %s\n", fmt.Sprintf("#%d", i), tagNames[c.Tag()], poolEntry(cf.Pool, uint16(i), c))
	}

	sb.WriteString("{\n")
	for i, m := range cf.Methods {
		if i > 0 {
			sb.WriteString("\n")
		}
		disassembleMethod(&sb, cf.Pool, m)
	}
	sb.WriteString("}\n")
	if src := cf.SourceFile(); src != "" {
		fmt.Fprintf(&sb, "SourceFile: %q\n", src)
	}
	return sb.String()
}

func classFlags(flags uint16) string {
	var out []string
	if flags&AccPublic != 0 {
		out = append(out, "ACC_PUBLIC")
	}
	if flags&AccFinal != 0 {
		out = append(out, "ACC_FINAL")
	}
	if flags&AccSuper != 0 {
		out = append(out, "ACC_SUPER")
	}
	return strings.Join(out, ", ")
}

func methodFlags(flags uint16) string {
	var out []string
	for _, f := range []struct {
		bit  uint16
		name string
	}{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"},
	} {
		if flags&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return strings.Join(out, " ")
}

// poolEntry 条目的参数和注释
func poolEntry(pool *ConstantPool, i uint16, c Constant) string {
	switch c := c.(type) {
	case Utf8Info:
		return c.Value
	case IntegerInfo, FloatInfo, LongInfo, DoubleInfo:
		return pool.Describe(i)
	case ClassInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d", c.NameIndex), pool.Describe(i))
	case StringInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d", c.StringIndex), pool.Describe(i))
	case NameAndTypeInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d:#%d", c.NameIndex, c.DescriptorIndex), pool.Describe(i))
	case FieldrefInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d.#%d", c.ClassIndex, c.NameAndTypeIndex), pool.Describe(i))
	case MethodrefInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d.#%d", c.ClassIndex, c.NameAndTypeIndex), pool.Describe(i))
	case InterfaceMethodrefInfo:
		return fmt.Sprintf("%-14s // %s", fmt.Sprintf("#%d.#%d", c.ClassIndex, c.NameAndTypeIndex), pool.Describe(i))
	}
	return "?"
}

func disassembleMethod(sb *strings.Builder, pool *ConstantPool, m *MethodInfo) {
	name, _ := pool.Utf8(m.NameIndex)
	desc, _ := pool.Utf8(m.DescriptorIndex)
	fmt.Fprintf(sb, "  %s %s%s;\n", methodFlags(m.AccessFlags), name, desc)
	fmt.Fprintf(sb, "    descriptor: %s\n", desc)

	code := m.Code()
	if code == nil {
		return
	}
	sb.WriteString("    Code:\n")
	fmt.Fprintf(sb, "      stack=%d, locals=%d\n", code.MaxStack, code.MaxLocals)
	sb.WriteString(DisassembleCode(code.Code, pool))

	for _, a := range code.Attributes {
		switch a := a.(type) {
		case *LineNumberTable:
			sb.WriteString("      LineNumberTable:\n")
			for _, e := range a.Entries {
				fmt.Fprintf(sb, "        line %d: %d\n", e.Line, e.StartPC)
			}
		case *LocalVariableTable:
			sb.WriteString("      LocalVariableTable:\n")
			sb.WriteString("        Start  Length  Slot  Name   Signature\n")
			for _, e := range a.Entries {
				n, _ := pool.Utf8(e.NameIndex)
				d, _ := pool.Utf8(e.DescriptorIndex)
				fmt.Fprintf(sb, "        %5d  %6d  %4d  %-6s %s\n", e.StartPC, e.Length, e.Index, n, d)
			}
		}
	}
}

// DisassembleCode 逐条列出指令，常量池操作数附带注释
func DisassembleCode(code []byte, pool *ConstantPool) string {
	var sb strings.Builder
	instrs, err := Decode(code)
	for _, in := range instrs {
		sb.WriteString("        " + FormatInstruction(in, pool) + "\n")
	}
	if err != nil {
		fmt.Fprintf(&sb, "        <%v>\n", err)
	}
	return sb.String()
}

// FormatInstruction 单条指令的 javap 风格文本
func FormatInstruction(in Decoded, pool *ConstantPool) string {
	head := fmt.Sprintf("%4d: %s", in.PC, in.Op)
	switch in.Op.Format() {
	case FormatBranch:
		return fmt.Sprintf("%4d: %-13s %d", in.PC, in.Op, in.Target())
	case FormatIinc:
		return fmt.Sprintf("%4d: %-13s %d, %d", in.PC, in.Op, in.Operands[0], in.Operands[1])
	case FormatU2:
		return fmt.Sprintf("%4d: %-13s #%-18d// %s", in.PC, in.Op, in.Operands[0], constantComment(pool, uint16(in.Operands[0])))
	case FormatU1:
		if in.Op == OpLdc {
			return fmt.Sprintf("%4d: %-13s #%-18d// %s", in.PC, in.Op, in.Operands[0], constantComment(pool, uint16(in.Operands[0])))
		}
		if in.Op == OpNewarray {
			return fmt.Sprintf("%4d: %-13s %s", in.PC, in.Op, arrayTypeName(in.Operands[0]))
		}
		return fmt.Sprintf("%4d: %-13s %d", in.PC, in.Op, in.Operands[0])
	case FormatS1, FormatS2:
		return fmt.Sprintf("%4d: %-13s %d", in.PC, in.Op, in.Operands[0])
	}
	return head
}

func constantComment(pool *ConstantPool, i uint16) string {
	c := pool.Get(i)
	if c == nil {
		return "?"
	}
	kind := tagNames[c.Tag()]
	switch c.Tag() {
	case ConstantMethodref, ConstantInterfaceMethodref:
		kind = "Method"
	case ConstantFieldref:
		kind = "Field"
	case ConstantInteger:
		kind = "int"
	case ConstantDouble:
		kind = "double"
	}
	return kind + " " + pool.Describe(i)
}

func arrayTypeName(code int) string {
	switch code {
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeLong:
		return "long"
	}
	return fmt.Sprintf("%d", code)
}
