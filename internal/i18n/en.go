package i18n

var messagesEN = map[string]string{
	// ========== 代码生成 ==========
	"error.unsupported_op":  "unsupported operation",
	"error.undefined_label": "undefined or duplicate label",
	"error.branch_range":    "branch offset out of range",
	"error.pool_overflow":   "constant pool overflow",
	"error.bad_operand":     "unsupported type or operand",
	"error.java_version":    "unsupported target Java version",
	"error.stack_mismatch":  "operand stack verification failed",
	"error.code_too_large":  "method code too large",
	"error.loop_control":    "break or continue outside of a loop",
	"error.too_many_locals": "too many local variables",
	"error.global_access":   "top-level variable used inside a function",
	"error.write_failed":    "failed to write output",
	"error.invalid_input":   "invalid input",

	// ========== 解释器 ==========
	"vm.uncaught_exception": "uncaught exception",
	"vm.verify_failed":      "class verification failed",
	"vm.undefined_method":   "undefined method",
	"vm.execution_limit":    "execution limit exceeded",

	// ========== 修复建议 ==========
	"hint.branch_range":      "GOTO_W is not generated; move part of the loop body into a function",
	"hint.pool_overflow":     "a class holds at most 65535 constants; reduce the number of distinct literals",
	"hint.java_version":      "target Java 6 (--java 6), which does not require StackMapTable frames",
	"hint.allow_unverified":  "or set allow_unverified = true in kforge.toml and run with -noverify",
	"hint.split_function":    "move part of the function body into a helper function",
	"hint.loop_control":      "break and continue are only valid inside while and for loops",
	"hint.global_access":     "top-level variables live in main; pass the value to the function as a parameter",
	"hint.runtime_exception": "check array indices and divisors in the program",
	"hint.step_limit":        "raise --max-steps or check the program for an infinite loop",

	"report.aborting": "aborting due to %d previous error(s)",

	// ========== 命令行 ==========
	"cli.short":       "kforge compiles a Kotlin subset to JVM class files",
	"cli.long":        "kforge lowers a typed Kotlin-subset program (JSON) to three-address code,\nstack bytecode and Java 6 class files.",
	"cli.cmd_tac":     "Print the three-address code of a program",
	"cli.cmd_asm":     "Print the stack bytecode of a program",
	"cli.cmd_build":   "Compile a program to a .class file",
	"cli.cmd_javap":   "Disassemble a .class file",
	"cli.cmd_run":     "Compile and run a program, or run a .class file",
	"cli.cmd_init":    "Write a default kforge.toml",
	"cli.cmd_version": "Show version information",

	"cli.opt_config":      "config file path",
	"cli.opt_lang":        "message language (en/zh)",
	"cli.opt_verbose":     "verbose output",
	"cli.opt_json":        "print the program as JSON",
	"cli.opt_no_comments": "omit comments from the listing",
	"cli.opt_check":       "check the operand stack depth",
	"cli.opt_output":      "output directory",
	"cli.opt_class":       "class name",
	"cli.opt_java":        "target Java version (6, 7 or 8)",
	"cli.opt_debug":       "write LineNumberTable and LocalVariableTable",
	"cli.opt_no_cache":    "do not use the build cache",
	"cli.opt_diagnostics": "print errors as text or as LSP diagnostics JSON (text/json)",
	"cli.opt_max_steps":   "maximum number of executed instructions",
	"cli.opt_stats":       "print execution statistics",
	"cli.opt_force":       "overwrite an existing file",

	"cli.read_failed":    "cannot read %s: %v",
	"cli.built":          "✓ Generated JVM class: %s (%d bytes)",
	"cli.cached":         "✓ Up to date: %s (%d bytes)",
	"cli.stack_ok":       "; stack check: max depth %d",
	"cli.stack_bad":      "; stack check failed:",
	"cli.config_written": "✓ Wrote %s",
	"cli.config_exists":  "%s already exists (use --force to overwrite)",
	"cli.version":        "kforge %s",
	"cli.version_desc":   "JVM back end for a Kotlin subset, emitting %s class files",
	"cli.stats":          "instructions: %d, calls: %d, natives: %d, allocations: %d, max depth: %d",
	"cli.failed":         "compilation failed",

	// ========== 配置 ==========
	"config.read_failed":  "cannot read config %s",
	"config.parse_failed": "invalid config %s",
	"config.bad_value":    "invalid value for %s: %v",
}
