package jvmgen

import (
	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

// MainDescriptor main 方法的描述符
const MainDescriptor = "([Ljava/lang/String;)V"

// Runtime 内建函数到 Java 标准库的映射，负责生成调用序列并登记常量
type Runtime struct {
	pool *ConstantPool
}

// NewRuntime 创建运行时映射
func NewRuntime(pool *ConstantPool) *Runtime {
	return &Runtime{pool: pool}
}

// printDescriptor PrintStream.println/print 的重载选择
func printDescriptor(t ast.Type) string {
	switch {
	case t == ast.TypeDouble:
		return "(D)V"
	case t == ast.TypeBoolean:
		return "(Z)V"
	case t == ast.TypeString:
		return "(Ljava/lang/String;)V"
	case t.IsArray():
		return "(Ljava/lang/Object;)V"
	}
	return "(I)V"
}

// SystemOut getstatic java/lang/System.out
func (r *Runtime) SystemOut() Instruction {
	return WithShort(OpGetstatic, int(r.pool.AddFieldref(ClassSystem, "out", "Ljava/io/PrintStream;")))
}

// Print 参数已经在栈顶时的打印序列：取出 System.out 并换到参数下面
func (r *Runtime) Print(name string, t ast.Type) ([]Instruction, error) {
	if name != "println" && name != "print" {
		return nil, errors.Errorf("not a print function: %s", name)
	}
	invoke := WithShort(OpInvokevirtual, int(r.pool.AddMethodref(ClassPrintStream, name, printDescriptor(t))))
	if t.IsWide() {
		// double 占两个槽，用 dup_x2 + pop 代替 swap
		return []Instruction{r.SystemOut(), Simple(OpDupX2), Simple(OpPop), invoke}, nil
	}
	return []Instruction{r.SystemOut(), Simple(OpSwap), invoke}, nil
}

// PrintNewline 无参数 println()
func (r *Runtime) PrintNewline() []Instruction {
	return []Instruction{
		r.SystemOut(),
		WithShort(OpInvokevirtual, int(r.pool.AddMethodref(ClassPrintStream, "println", "()V"))),
	}
}

// NewArray 长度已在栈顶时创建数组：基本类型用 newarray，引用类型用 anewarray
func (r *Runtime) NewArray(elem ast.Type) Instruction {
	switch {
	case elem == ast.TypeDouble:
		return WithByte(OpNewarray, TypeDouble)
	case elem == ast.TypeString:
		return WithShort(OpAnewarray, int(r.pool.AddClass(ClassString)))
	case elem.IsArray():
		return WithShort(OpAnewarray, int(r.pool.AddClass(Descriptor(elem))))
	}
	return WithByte(OpNewarray, TypeInt)
}

// ArrayLoad 数组元素加载指令
func (r *Runtime) ArrayLoad(elem ast.Type) Instruction {
	switch {
	case elem == ast.TypeDouble:
		return Simple(OpDaload)
	case elem.IsReference():
		return Simple(OpAaload)
	}
	return Simple(OpIaload)
}

// ArrayStore 数组元素存储指令
func (r *Runtime) ArrayStore(elem ast.Type) Instruction {
	switch {
	case elem == ast.TypeDouble:
		return Simple(OpDastore)
	case elem.IsReference():
		return Simple(OpAastore)
	}
	return Simple(OpIastore)
}

// ArrayLiteral 创建 n 个元素的数组并逐个填充：dup; 下标; value(i); xastore。
// value 负责把第 i 个元素压栈
func (r *Runtime) ArrayLiteral(elem ast.Type, n int, emit func(Instruction) error, value func(i int) error) error {
	if err := emit(PushInt(r.pool, int32(n))); err != nil {
		return err
	}
	if err := emit(r.NewArray(elem)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := emit(Simple(OpDup)); err != nil {
			return err
		}
		if err := emit(PushInt(r.pool, int32(i))); err != nil {
			return err
		}
		if err := value(i); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
		if err := emit(r.ArrayStore(elem)); err != nil {
			return err
		}
	}
	return nil
}

// LoadString 字符串常量
func (r *Runtime) LoadString(s string) Instruction {
	return loadConstant(r.pool.AddString(s))
}

// ValueOf String.valueOf 的重载
func (r *Runtime) ValueOf(t ast.Type) Instruction {
	desc := "(I)Ljava/lang/String;"
	switch {
	case t == ast.TypeDouble:
		desc = "(D)Ljava/lang/String;"
	case t == ast.TypeBoolean:
		desc = "(Z)Ljava/lang/String;"
	case t.IsReference():
		desc = "(Ljava/lang/Object;)Ljava/lang/String;"
	}
	return WithShort(OpInvokestatic, int(r.pool.AddMethodref(ClassString, "valueOf", desc)))
}

// Concat String.concat
func (r *Runtime) Concat() Instruction {
	return r.stringMethod("concat", "(Ljava/lang/String;)Ljava/lang/String;")
}

// Equals String.equals
func (r *Runtime) Equals() Instruction {
	return r.stringMethod("equals", "(Ljava/lang/Object;)Z")
}

// CompareTo String.compareTo
func (r *Runtime) CompareTo() Instruction {
	return r.stringMethod("compareTo", "(Ljava/lang/String;)I")
}

// Length String.length
func (r *Runtime) Length() Instruction {
	return r.stringMethod("length", "()I")
}

func (r *Runtime) stringMethod(name, desc string) Instruction {
	return WithShort(OpInvokevirtual, int(r.pool.AddMethodref(ClassString, name, desc)))
}

// InvokeStatic 调用静态方法
func (r *Runtime) InvokeStatic(class, name, desc string) Instruction {
	return WithShort(OpInvokestatic, int(r.pool.AddMethodref(class, name, desc)))
}

// MainMethod public static main(String[])，max_locals 至少为 1 以容纳 args
func (r *Runtime) MainMethod(code *CodeResult, attrs ...Attribute) *MethodInfo {
	locals := code.MaxLocals
	if locals < 1 {
		locals = 1
	}
	return &MethodInfo{
		AccessFlags:     AccPublic | AccStatic,
		NameIndex:       r.pool.AddUtf8("main"),
		DescriptorIndex: r.pool.AddUtf8(MainDescriptor),
		Attributes:      []Attribute{NewCodeAttribute(r.pool, code.MaxStack, locals, code.Code, attrs...)},
	}
}

// InitMethod 默认构造函数：aload_0; invokespecial Object.<init>; return
func (r *Runtime) InitMethod() (*CodeAttribute, error) {
	w := NewByteWriter()
	code := []Instruction{
		Simple(OpAload0),
		WithShort(OpInvokespecial, int(r.pool.AddMethodref(ClassObject, "<init>", "()V"))),
		Simple(OpReturn),
	}
	for _, in := range code {
		if err := in.Encode(w); err != nil {
			return nil, err
		}
	}
	return NewCodeAttribute(r.pool, 1, 1, w.Bytes()), nil
}
