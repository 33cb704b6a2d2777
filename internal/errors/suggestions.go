package errors

import "github.com/tangzhangming/kforge/internal/i18n"

// 错误码到修复建议的消息 ID
var suggestionIDs = map[string][]string{
	G0003: {"hint.branch_range"},
	G0004: {"hint.pool_overflow"},
	G0006: {"hint.java_version", "hint.allow_unverified"},
	G0008: {"hint.split_function"},
	G0009: {"hint.loop_control"},
	G0010: {"hint.split_function"},
	G0011: {"hint.global_access"},
	R0001: {"hint.runtime_exception"},
	R0401: {"hint.step_limit"},
}

// Suggestions 错误码对应的本地化修复建议
func Suggestions(code string) []string {
	ids := suggestionIDs[code]
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, i18n.T(id))
	}
	return out
}
