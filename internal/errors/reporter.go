package errors

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/tangzhangming/kforge/internal/i18n"
)

// ============================================================================
// 错误报告器
// ============================================================================

// Reporter 收集并输出编译错误
type Reporter struct {
	formatter *Formatter
	out       io.Writer
	errors    []*CompileError
	warnings  []*CompileError
}

// NewReporter 创建输出到 out 的报告器
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		formatter: NewFormatter(),
		out:       out,
	}
}

// SetFormatter 设置格式化器
func (r *Reporter) SetFormatter(f *Formatter) {
	r.formatter = f
}

// Report 记录一个错误；警告单独计数
func (r *Reporter) Report(err *CompileError) {
	if err.Level == LevelWarning {
		r.warnings = append(r.warnings, err)
	} else {
		r.errors = append(r.errors, err)
	}
	fmt.Fprint(r.out, r.formatter.FormatCompileError(err))
}

// ReportError 记录任意错误
func (r *Reporter) ReportError(err error, file string) {
	r.Report(FromError(err).WithFile(file))
}

// Summary 结尾的汇总行，没有错误时为空
func (r *Reporter) Summary() {
	if len(r.errors) == 0 {
		return
	}
	msg := i18n.T("report.aborting", len(r.errors))
	fmt.Fprintln(r.out, r.formatter.paint(msg, color.FgRed, color.Bold))
}

// ============================================================================
// 状态查询
// ============================================================================

// HasErrors 是否有错误
func (r *Reporter) HasErrors() bool {
	return len(r.errors) > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	return len(r.errors)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	return len(r.warnings)
}

// Errors 获取所有错误
func (r *Reporter) Errors() []*CompileError {
	return r.errors
}

// Clear 清空错误和警告
func (r *Reporter) Clear() {
	r.errors = nil
	r.warnings = nil
}
