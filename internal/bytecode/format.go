package bytecode

import (
	"fmt"
	"strings"
)

// 清单头部
var header = []string{
	"; KForge Compiler - Bytecode Assembly",
	"; Generated from TAC Intermediate Representation",
	"; Architecture: Stack-Based",
	"",
}

// FormatOptions 清单格式选项
type FormatOptions struct {
	Comments bool
}

// Format 格式化为汇编风格的清单
func Format(instrs []Instruction, opts FormatOptions) string {
	if len(instrs) == 0 {
		return "; No bytecode generated"
	}

	lines := make([]string, 0, len(instrs)+len(header))
	lines = append(lines, header...)

	for i, in := range instrs {
		num := fmt.Sprintf("%4d:  ", i)

		if in.Op == OpLabel {
			if opts.Comments && in.Comment != "" {
				lines = append(lines, num+in.Operand+":    ; "+in.Comment)
			} else {
				lines = append(lines, num+in.Operand+":")
			}
			continue
		}

		text := "    " + in.String()
		if opts.Comments && in.Comment != "" {
			lines = append(lines, fmt.Sprintf("%s%-40s ; %s", num, text, in.Comment))
		} else {
			lines = append(lines, num+text)
		}
	}

	return strings.Join(lines, "\n")
}
