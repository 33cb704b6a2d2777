package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrVerify 字节码违反了 JVM 校验规则（类型不符、越过 max_stack/max_locals、跳到指令中间）
	ErrVerify = errors.New("verify error")
	// ErrStepLimit 执行的指令数超过上限
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrNoMain 类中没有 public static void main(String[])
	ErrNoMain = errors.New("no main method")
	// ErrNoSuchMethod 调用了类中或内建库中不存在的方法
	ErrNoSuchMethod = errors.New("no such method")
	// ErrUnsupported 解释器不支持的指令
	ErrUnsupported = errors.New("unsupported instruction")
)

// Frame 异常栈中的一帧
type Frame struct {
	Class  string
	Method string
	Source string
	Line   int
}

func (f Frame) String() string {
	loc := "Unknown Source"
	if f.Source != "" {
		loc = f.Source
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.Source, f.Line)
		}
	}
	return fmt.Sprintf("at %s.%s(%s)", strings.ReplaceAll(f.Class, "/", "."), f.Method, loc)
}

// Exception 程序抛出的 Java 运行时异常
type Exception struct {
	Class   string // 内部形式，如 java/lang/ArithmeticException
	Message string
	Trace   []Frame
}

func (e *Exception) Error() string {
	name := strings.ReplaceAll(e.Class, "/", ".")
	if e.Message == "" {
		return name
	}
	return name + ": " + e.Message
}

// StackTrace java 命令打印的未捕获异常格式
func (e *Exception) StackTrace() string {
	var sb strings.Builder
	sb.WriteString(`Exception in thread "main" `)
	sb.WriteString(e.Error())
	for _, f := range e.Trace {
		sb.WriteString("\n\t")
		sb.WriteString(f.String())
	}
	return sb.String()
}

func throw(class, format string, args ...interface{}) *Exception {
	return &Exception{Class: class, Message: fmt.Sprintf(format, args...)}
}

const (
	excArithmetic    = "java/lang/ArithmeticException"
	excArrayIndex    = "java/lang/ArrayIndexOutOfBoundsException"
	excNegativeSize  = "java/lang/NegativeArraySizeException"
	excNullPointer   = "java/lang/NullPointerException"
	excStackOverflow = "java/lang/StackOverflowError"
)
