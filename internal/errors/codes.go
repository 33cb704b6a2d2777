// Package errors 提供 kforge 的错误码、编译错误和格式化输出
package errors

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// 代码生成错误码 (G 开头)
// ============================================================================

const (
	G0001 = "G0001" // 不支持的操作
	G0002 = "G0002" // 未定义或重复的标签
	G0003 = "G0003" // 跳转偏移越界
	G0004 = "G0004" // 常量池溢出
	G0005 = "G0005" // 不支持的类型或操作数
	G0006 = "G0006" // Java 版本
	G0007 = "G0007" // 栈校验失败
	G0008 = "G0008" // 方法代码过大
	G0009 = "G0009" // 循环外的 break/continue
	G0010 = "G0010" // 局部变量过多
	G0011 = "G0011" // 函数引用顶层变量
)

// 输入输出错误码
const (
	IO0001 = "IO0001" // 写文件失败
	IN0001 = "IN0001" // 输入无效
)

// ============================================================================
// 运行时错误码 (R 开头)
// ============================================================================

const (
	R0001 = "R0001" // 未捕获的异常
	R0002 = "R0002" // 字节码校验失败
	R0305 = "R0305" // 未定义的方法
	R0401 = "R0401" // 执行超时/死循环
)

// ============================================================================
// 错误码信息
// ============================================================================

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code      string // 错误码
	Level     Level  // 错误级别
	MessageID string // i18n 消息 ID
	Category  string // 错误分类
}

var errorInfos = map[string]ErrorInfo{
	G0001: {G0001, LevelError, "error.unsupported_op", "codegen"},
	G0002: {G0002, LevelError, "error.undefined_label", "codegen"},
	G0003: {G0003, LevelError, "error.branch_range", "codegen"},
	G0004: {G0004, LevelError, "error.pool_overflow", "classfile"},
	G0005: {G0005, LevelError, "error.bad_operand", "codegen"},
	G0006: {G0006, LevelError, "error.java_version", "classfile"},
	G0007: {G0007, LevelError, "error.stack_mismatch", "verify"},
	G0008: {G0008, LevelError, "error.code_too_large", "classfile"},
	G0009: {G0009, LevelError, "error.loop_control", "tac"},
	G0010: {G0010, LevelError, "error.too_many_locals", "codegen"},
	G0011: {G0011, LevelError, "error.global_access", "tac"},

	IO0001: {IO0001, LevelError, "error.write_failed", "io"},
	IN0001: {IN0001, LevelError, "error.invalid_input", "input"},

	R0001: {R0001, LevelError, "vm.uncaught_exception", "runtime"},
	R0002: {R0002, LevelError, "vm.verify_failed", "runtime"},
	R0305: {R0305, LevelError, "vm.undefined_method", "runtime"},
	R0401: {R0401, LevelError, "vm.execution_limit", "resource"},
}

// GetErrorInfo 获取错误码信息
func GetErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := errorInfos[code]
	return info, ok
}

// IsRuntimeError 检查是否为运行时错误码
func IsRuntimeError(code string) bool {
	return len(code) > 0 && code[0] == 'R'
}
