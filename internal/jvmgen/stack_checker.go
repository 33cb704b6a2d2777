package jvmgen

import (
	"fmt"
)

// StackCheckResult 栈检查结果
type StackCheckResult struct {
	MaxDepth int      // 最大栈深度
	IsValid  bool     // 是否有效
	Errors   []string // 错误信息
}

// CheckCode 沿控制流重放字节码，计算每条指令处的栈深度。
// 汇合点深度必须一致，所有路径必须以返回或跳转结束
func CheckCode(code []byte, pool *ConstantPool) StackCheckResult {
	instrs, err := Decode(code)
	if err != nil {
		return StackCheckResult{Errors: []string{err.Error()}}
	}
	if len(instrs) == 0 {
		return StackCheckResult{Errors: []string{"empty code"}}
	}

	index := make(map[int]int, len(instrs))
	for i, in := range instrs {
		index[in.PC] = i
	}
	depths := make([]int, len(instrs))
	for i := range depths {
		depths[i] = -1
	}

	type workItem struct {
		pos   int
		depth int
	}
	worklist := []workItem{{0, 0}}
	var errs []string
	maxDepth := 0

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		pos, depth := item.pos, item.depth
		for {
			if pos >= len(instrs) {
				errs = append(errs, "execution falls off the end of the code")
				break
			}
			if depths[pos] >= 0 {
				if depths[pos] != depth {
					errs = append(errs, fmt.Sprintf("inconsistent stack depth at pc %d: %d and %d",
						instrs[pos].PC, depths[pos], depth))
				}
				break
			}
			depths[pos] = depth

			in := instrs[pos]
			pop, push, err := StackEffect(in.Instruction, pool)
			if err != nil {
				errs = append(errs, fmt.Sprintf("pc %d: %v", in.PC, err))
				break
			}
			if depth < pop {
				errs = append(errs, fmt.Sprintf("stack underflow at pc %d (%s): depth %d, pops %d",
					in.PC, in.Op, depth, pop))
				break
			}
			depth = depth - pop + push
			if depth > maxDepth {
				maxDepth = depth
			}

			if in.Op.IsBranch() {
				target, ok := index[in.Target()]
				if !ok {
					errs = append(errs, fmt.Sprintf("pc %d: branch to invalid offset %d", in.PC, in.Target()))
					break
				}
				worklist = append(worklist, workItem{target, depth})
			}
			if in.Op.EndsBlock() {
				break
			}
			pos++
		}
	}

	return StackCheckResult{
		MaxDepth: maxDepth,
		IsValid:  len(errs) == 0,
		Errors:   errs,
	}
}
