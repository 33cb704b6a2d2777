package vm

import (
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// ============================================================================
// 内建库
// ============================================================================

// native 内建方法；静态方法的 this 为零值
type native func(vm *VM, this Value, args []Value) (Value, error)

// natives 按 "类.方法描述符" 登记
var natives = map[string]native{
	"java/lang/Object.<init>()V": func(*VM, Value, []Value) (Value, error) { return Value{}, nil },

	"java/io/PrintStream.println()V":                   printer(true, nil),
	"java/io/PrintStream.println(I)V":                  printer(true, intString),
	"java/io/PrintStream.println(D)V":                  printer(true, doubleString),
	"java/io/PrintStream.println(Z)V":                  printer(true, boolString),
	"java/io/PrintStream.println(Ljava/lang/String;)V": printer(true, objectString),
	"java/io/PrintStream.println(Ljava/lang/Object;)V": printer(true, objectString),
	"java/io/PrintStream.print(I)V":                    printer(false, intString),
	"java/io/PrintStream.print(D)V":                    printer(false, doubleString),
	"java/io/PrintStream.print(Z)V":                    printer(false, boolString),
	"java/io/PrintStream.print(Ljava/lang/String;)V":   printer(false, objectString),
	"java/io/PrintStream.print(Ljava/lang/Object;)V":   printer(false, objectString),

	"java/lang/String.valueOf(I)Ljava/lang/String;":                  valueOf(intString),
	"java/lang/String.valueOf(D)Ljava/lang/String;":                  valueOf(doubleString),
	"java/lang/String.valueOf(Z)Ljava/lang/String;":                  valueOf(boolString),
	"java/lang/String.valueOf(Ljava/lang/Object;)Ljava/lang/String;": valueOf(objectString),

	"java/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;": stringConcat,
	"java/lang/String.equals(Ljava/lang/Object;)Z":                  stringEquals,
	"java/lang/String.compareTo(Ljava/lang/String;)I":               stringCompareTo,
	"java/lang/String.length()I":                                    stringLength,
}

func printer(newline bool, format func(Value) string) native {
	return func(vm *VM, this Value, args []Value) (Value, error) {
		ps, ok := this.R.(*PrintStream)
		if !ok {
			return Value{}, errors.Wrapf(ErrVerify, "PrintStream method invoked on %T", this.R)
		}
		var s string
		if format != nil {
			s = format(args[0])
		}
		if newline {
			s += "\n"
		}
		if _, err := io.WriteString(ps.w, s); err != nil {
			return Value{}, errors.Wrap(err, "write System.out")
		}
		return Value{}, nil
	}
}

func valueOf(format func(Value) string) native {
	return func(_ *VM, _ Value, args []Value) (Value, error) {
		return RefValue(format(args[0])), nil
	}
}

// receiver 字符串方法的接收者
func receiver(this Value) (string, error) {
	s, ok := this.R.(string)
	if !ok {
		return "", errors.Wrapf(ErrVerify, "String method invoked on %T", this.R)
	}
	return s, nil
}

func stringConcat(_ *VM, this Value, args []Value) (Value, error) {
	s, err := receiver(this)
	if err != nil {
		return Value{}, err
	}
	other, ok := args[0].R.(string)
	if !ok {
		return Value{}, throw(excNullPointer, "concat(null)")
	}
	return RefValue(s + other), nil
}

func stringEquals(_ *VM, this Value, args []Value) (Value, error) {
	s, err := receiver(this)
	if err != nil {
		return Value{}, err
	}
	other, ok := args[0].R.(string)
	if ok && other == s {
		return IntValue(1), nil
	}
	return IntValue(0), nil
}

func stringCompareTo(_ *VM, this Value, args []Value) (Value, error) {
	s, err := receiver(this)
	if err != nil {
		return Value{}, err
	}
	other, ok := args[0].R.(string)
	if !ok {
		return Value{}, throw(excNullPointer, "compareTo(null)")
	}
	return IntValue(compareUTF16(s, other)), nil
}

func stringLength(_ *VM, this Value, _ []Value) (Value, error) {
	s, err := receiver(this)
	if err != nil {
		return Value{}, err
	}
	return IntValue(int32(len(utf16.Encode([]rune(s))))), nil
}

// compareUTF16 String.compareTo：按 UTF-16 码元比较，返回第一个差值或长度差
func compareUTF16(a, b string) int32 {
	x, y := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	n := min(len(x), len(y))
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			return int32(x[i]) - int32(y[i])
		}
	}
	return int32(len(x) - len(y))
}

// ============================================================================
// Java 的字符串转换
// ============================================================================

func intString(v Value) string { return strconv.Itoa(int(v.I)) }

func boolString(v Value) string { return strconv.FormatBool(v.I != 0) }

func doubleString(v Value) string { return formatDouble(v.D) }

func objectString(v Value) string {
	switch r := v.R.(type) {
	case nil:
		return "null"
	case string:
		return r
	case *Array:
		return r.String()
	case *PrintStream:
		return r.String()
	}
	return "java.lang.Object"
}

// formatDouble Double.toString：[1e-3, 1e7) 用定点，其他用 d.dddE±n，至少保留一位小数
func formatDouble(d float64) string {
	switch {
	case math.IsNaN(d):
		return "NaN"
	case math.IsInf(d, 1):
		return "Infinity"
	case math.IsInf(d, -1):
		return "-Infinity"
	case d == 0:
		if math.Signbit(d) {
			return "-0.0"
		}
		return "0.0"
	}

	if abs := math.Abs(d); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(d, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(d, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(n)
}
