package errors

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Source 诊断来源
const Source = "kforge"

// ToDiagnostic 转换为 LSP 诊断。没有行号时指向文件开头。
func (e *CompileError) ToDiagnostic() protocol.Diagnostic {
	line := uint32(0)
	if e.Line > 0 {
		line = uint32(e.Line - 1) // LSP 行号从 0 开始
	}
	severity := protocol.DiagnosticSeverityError
	switch e.Level {
	case LevelWarning:
		severity = protocol.DiagnosticSeverityWarning
	case LevelNote:
		severity = protocol.DiagnosticSeverityInformation
	}
	msg := e.Message
	if e.Func != "" {
		msg = e.Func + ": " + msg
	}
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line},
			End:   protocol.Position{Line: line + 1},
		},
		Severity: severity,
		Code:     e.Code,
		Source:   Source,
		Message:  msg,
	}
}

// PublishParams 一个文件的全部诊断，供编辑器宿主发送 textDocument/publishDiagnostics
func PublishParams(path string, errs []*CompileError) protocol.PublishDiagnosticsParams {
	diags := make([]protocol.Diagnostic, 0, len(errs))
	for _, e := range errs {
		diags = append(diags, e.ToDiagnostic())
	}
	return protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri.File(path)),
		Diagnostics: diags,
	}
}
