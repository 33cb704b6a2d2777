package jvmgen

import "github.com/pkg/errors"

// JVM 后端的错误类别，调用方用 errors.Is 判断
var (
	ErrPoolOverflow      = errors.New("constant pool overflow")
	ErrTooManyLocals     = errors.New("too many local variables")
	ErrUndefinedLabel    = errors.New("undefined label")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrBranchRange       = errors.New("branch offset out of range")
	ErrCodeTooLarge      = errors.New("method code too large")
	ErrStackMapRequired  = errors.New("class version requires StackMapTable")
	ErrUnsupportedTarget = errors.New("unsupported Java version")
	ErrUnsupportedOp     = errors.New("unsupported instruction")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrBadOperand        = errors.New("bad operand")
	ErrMalformedClass    = errors.New("malformed class file")
	ErrStackMismatch     = errors.New("stack verification failed")
)
