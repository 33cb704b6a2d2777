package errors

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/bytecode"
	"github.com/tangzhangming/kforge/internal/jvmgen"
	"github.com/tangzhangming/kforge/internal/tac"
	"github.com/tangzhangming/kforge/internal/vm"
)

// 哨兵错误到错误码，按顺序匹配
var classes = []struct {
	err  error
	code string
}{
	{tac.ErrLoopControl, G0009},
	{tac.ErrGlobalAccess, G0011},
	{tac.ErrUnsupported, G0001},
	{bytecode.ErrUnknownOp, G0001},
	{jvmgen.ErrUnsupportedOp, G0001},
	{jvmgen.ErrUndefinedLabel, G0002},
	{jvmgen.ErrDuplicateLabel, G0002},
	{jvmgen.ErrBranchRange, G0003},
	{jvmgen.ErrPoolOverflow, G0004},
	{jvmgen.ErrBadOperand, G0005},
	{jvmgen.ErrUndefinedVariable, G0005},
	{jvmgen.ErrUndefinedFunction, G0005},
	{jvmgen.ErrStackMapRequired, G0006},
	{jvmgen.ErrUnsupportedTarget, G0006},
	{jvmgen.ErrStackMismatch, G0007},
	{jvmgen.ErrCodeTooLarge, G0008},
	{jvmgen.ErrTooManyLocals, G0010},
	{jvmgen.ErrMalformedClass, IN0001},
	{vm.ErrVerify, R0002},
	{vm.ErrUnsupported, R0002},
	{vm.ErrNoMain, R0305},
	{vm.ErrNoSuchMethod, R0305},
	{vm.ErrStepLimit, R0401},
}

// CodeOf 错误对应的错误码，无法识别时为 IN0001
func CodeOf(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var exc *vm.Exception
	if errors.As(err, &exc) {
		return R0001
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return IN0001
}

// FromError 把任意错误包装成 CompileError；已经是 CompileError 的原样返回
func FromError(err error) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CompileError{Code: IN0001, Level: LevelError, Message: err.Error(), cause: err}
	}
	code := CodeOf(err)
	return &CompileError{
		Code:    code,
		Level:   LevelError,
		Message: err.Error(),
		Func:    methodOf(err.Error()),
		cause:   err,
	}
}

// methodOf 从 "method NAME: ..." 形式的包装链中取出方法名
func methodOf(msg string) string {
	const prefix = "method "
	i := strings.Index(msg, prefix)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(prefix):]
	if j := strings.IndexAny(rest, ": "); j >= 0 {
		return rest[:j]
	}
	return rest
}
