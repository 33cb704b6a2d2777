package bytecode

import (
	"fmt"
	"strings"
)

// ============================================================================
// 操作数栈深度检查
// ============================================================================

// StackCheckResult 栈检查结果
type StackCheckResult struct {
	MaxDepth int      // 最大栈深度
	IsValid  bool     // 是否有效
	Errors   []string // 错误信息
}

// CheckStack 用数据流分析计算清单每个位置的栈深度。
// 入口是第 0 条指令和每个函数标签，深度均为 0。
func CheckStack(instrs []Instruction) StackCheckResult {
	if len(instrs) == 0 {
		return StackCheckResult{IsValid: true}
	}

	labels := make(map[string]int)
	for i, in := range instrs {
		if in.Op == OpLabel {
			labels[in.Operand] = i
		}
	}

	// 每个位置的栈深度（-1 表示未访问）
	depths := make([]int, len(instrs))
	for i := range depths {
		depths[i] = -1
	}

	type workItem struct {
		pos   int
		depth int
	}
	worklist := []workItem{{0, 0}}
	for i, in := range instrs {
		if in.Op == OpLabel && strings.HasPrefix(in.Operand, "func_") {
			worklist = append(worklist, workItem{i, 0})
		}
	}

	var errs []string
	maxDepth := 0

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		pos, depth := item.pos, item.depth
		for pos < len(instrs) {
			if depths[pos] >= 0 {
				if depths[pos] != depth {
					errs = append(errs, fmt.Sprintf("inconsistent stack depth at %d: %d and %d", pos, depths[pos], depth))
				}
				break
			}
			depths[pos] = depth

			in := instrs[pos]
			newDepth := depth + stackEffect(in)
			if newDepth < 0 {
				errs = append(errs, fmt.Sprintf("stack underflow at %d (%s): depth %d -> %d", pos, in.Op, depth, newDepth))
				newDepth = 0
			}
			if newDepth > maxDepth {
				maxDepth = newDepth
			}

			switch in.Op {
			case OpJump, OpJumpF:
				target, ok := labels[in.Operand]
				if !ok {
					errs = append(errs, fmt.Sprintf("jump to undefined label %s at %d", in.Operand, pos))
				} else {
					worklist = append(worklist, workItem{target, newDepth})
				}
				if in.Op == OpJump {
					pos = len(instrs)
					continue
				}
			case OpRet, OpHalt:
				pos = len(instrs)
				continue
			}
			depth = newDepth
			pos++
		}
	}

	return StackCheckResult{
		MaxDepth: maxDepth,
		IsValid:  len(errs) == 0,
		Errors:   errs,
	}
}

// stackEffect 指令对栈的净影响
func stackEffect(in Instruction) int {
	switch in.Op {
	case OpPush, OpLoad:
		return 1
	case OpStore, OpJumpF:
		return -1
	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpLt, OpGt, OpLe, OpGe, OpEq, OpNe,
		OpAnd, OpOr, OpALoad:
		return -1
	case OpAStore:
		return -3
	case OpCall:
		return 1 - in.Args
	case OpRet:
		// RET 弹出返回值（如果有），路径到此结束
		return 0
	}
	return 0
}
