package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/tangzhangming/kforge/internal/i18n"
	"github.com/tangzhangming/kforge/internal/vm"
)

// ============================================================================
// 编译错误
// ============================================================================

// CompileError 编译错误
type CompileError struct {
	Code    string   // 错误码 (G0003)
	Level   Level    // 错误级别
	Message string   // 主消息
	File    string   // 输入文件
	Line    int      // 源码行号，未知时为 0
	Func    string   // 出错的方法
	Hints   []string // 修复建议
	Notes   []string // 附加说明

	cause error
}

// New 用错误码和消息创建编译错误
func New(code, format string, args ...interface{}) *CompileError {
	level := LevelError
	if info, ok := GetErrorInfo(code); ok {
		level = info.Level
	}
	return &CompileError{Code: code, Level: level, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用指定错误码包装底层错误
func Wrap(code string, err error) *CompileError {
	ce := New(code, "%v", err)
	ce.cause = err
	return ce
}

// Error 实现 error 接口
func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
		}
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	return sb.String()
}

// Unwrap 返回底层错误
func (e *CompileError) Unwrap() error { return e.cause }

// WithFile 设置输入文件
func (e *CompileError) WithFile(file string) *CompileError {
	e.File = file
	return e
}

// Title 错误码对应的本地化标题
func (e *CompileError) Title() string {
	if info, ok := GetErrorInfo(e.Code); ok {
		return i18n.T(info.MessageID)
	}
	return e.Code
}

// ============================================================================
// 格式化器
// ============================================================================

// Formatter 错误格式化器
type Formatter struct {
	Colors    bool // 是否使用颜色
	ShowHints bool // 是否显示修复建议
}

// NewFormatter 创建默认格式化器，终端不支持颜色时自动关闭
func NewFormatter() *Formatter {
	return &Formatter{
		Colors:    !color.NoColor,
		ShowHints: true,
	}
}

func (f *Formatter) paint(s string, attrs ...color.Attribute) string {
	if !f.Colors {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func (f *Formatter) levelAttrs(l Level) []color.Attribute {
	switch l {
	case LevelWarning:
		return []color.Attribute{color.FgYellow, color.Bold}
	case LevelNote:
		return []color.Attribute{color.FgCyan, color.Bold}
	}
	return []color.Attribute{color.FgRed, color.Bold}
}

// FormatCompileError 格式化编译错误
//
//	error[G0003]: branch offset out of range
//	 --> prog.json:12 (in main)
//	  = detail: method main: ...
//	  = help: ...
func (f *Formatter) FormatCompileError(err *CompileError) string {
	var sb strings.Builder

	head := f.paint(fmt.Sprintf("%s[%s]", err.Level, err.Code), f.levelAttrs(err.Level)...)
	sb.WriteString(fmt.Sprintf("%s: %s\n", head, err.Title()))

	if err.File != "" || err.Func != "" {
		loc := err.File
		if err.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, err.Line)
		}
		if err.Func != "" {
			loc = strings.TrimSpace(fmt.Sprintf("%s (in %s)", loc, err.Func))
		}
		sb.WriteString(fmt.Sprintf(" %s %s\n", f.paint("-->", color.FgCyan), loc))
	}

	sb.WriteString(fmt.Sprintf("  %s %s\n", f.paint("= detail:", color.FgCyan), err.Message))

	if f.ShowHints {
		hints := err.Hints
		if len(hints) == 0 {
			hints = Suggestions(err.Code)
		}
		for _, hint := range hints {
			sb.WriteString(fmt.Sprintf("  %s %s\n", f.paint("= help:", color.FgCyan), hint))
		}
	}
	for _, note := range err.Notes {
		sb.WriteString(fmt.Sprintf("  %s %s\n", f.paint("= note:", color.FgCyan), note))
	}
	return sb.String()
}

// FormatException 格式化解释器抛出的 Java 异常
func (f *Formatter) FormatException(exc *vm.Exception) string {
	var sb strings.Builder
	head := f.paint(fmt.Sprintf("RuntimeError[%s]", R0001), color.FgRed, color.Bold)
	sb.WriteString(fmt.Sprintf("%s: %s\n", head, exc.Error()))
	for _, fr := range exc.Trace {
		sb.WriteString("    ")
		sb.WriteString(f.paint(fr.String(), color.FgYellow))
		sb.WriteString("\n")
	}
	return sb.String()
}
