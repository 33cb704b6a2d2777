package i18n

var messagesZH = map[string]string{
	// ========== 代码生成 ==========
	"error.unsupported_op":  "不支持的操作",
	"error.undefined_label": "未定义或重复的标签",
	"error.branch_range":    "跳转偏移超出范围",
	"error.pool_overflow":   "常量池溢出",
	"error.bad_operand":     "不支持的类型或操作数",
	"error.java_version":    "不支持的目标 Java 版本",
	"error.stack_mismatch":  "操作数栈校验失败",
	"error.code_too_large":  "方法代码过大",
	"error.loop_control":    "break 或 continue 不在循环内",
	"error.too_many_locals": "局部变量过多",
	"error.global_access":   "函数中使用了顶层变量",
	"error.write_failed":    "写入输出失败",
	"error.invalid_input":   "输入无效",

	// ========== 解释器 ==========
	"vm.uncaught_exception": "未捕获的异常",
	"vm.verify_failed":      "class 校验失败",
	"vm.undefined_method":   "未定义的方法",
	"vm.execution_limit":    "超出执行限制",

	// ========== 修复建议 ==========
	"hint.branch_range":      "不生成 GOTO_W；把部分循环体移到函数中",
	"hint.pool_overflow":     "一个类最多 65535 个常量；减少不同字面量的数量",
	"hint.java_version":      "以 Java 6 为目标 (--java 6)，它不需要 StackMapTable",
	"hint.allow_unverified":  "或者在 kforge.toml 中设置 allow_unverified = true 并用 -noverify 运行",
	"hint.split_function":    "把部分函数体移到辅助函数中",
	"hint.loop_control":      "break 和 continue 只能出现在 while 和 for 循环内",
	"hint.global_access":     "顶层变量属于 main；把值作为参数传给函数",
	"hint.runtime_exception": "检查程序中的数组下标和除数",
	"hint.step_limit":        "调大 --max-steps，或检查程序是否有死循环",

	"report.aborting": "由于之前的 %d 个错误，编译中止",

	// ========== 命令行 ==========
	"cli.short":       "kforge 把 Kotlin 子集编译为 JVM class 文件",
	"cli.long":        "kforge 把带类型的 Kotlin 子集程序 (JSON) 降低为三地址码、\n栈式字节码和 Java 6 class 文件。",
	"cli.cmd_tac":     "输出程序的三地址码",
	"cli.cmd_asm":     "输出程序的栈式字节码",
	"cli.cmd_build":   "把程序编译为 .class 文件",
	"cli.cmd_javap":   "反汇编 .class 文件",
	"cli.cmd_run":     "编译并运行程序，或运行 .class 文件",
	"cli.cmd_init":    "生成默认的 kforge.toml",
	"cli.cmd_version": "显示版本信息",

	"cli.opt_config":      "配置文件路径",
	"cli.opt_lang":        "消息语言 (en/zh)",
	"cli.opt_verbose":     "详细输出",
	"cli.opt_json":        "以 JSON 输出程序",
	"cli.opt_no_comments": "清单中不带注释",
	"cli.opt_check":       "检查操作数栈深度",
	"cli.opt_output":      "输出目录",
	"cli.opt_class":       "类名",
	"cli.opt_java":        "目标 Java 版本 (6、7 或 8)",
	"cli.opt_debug":       "写出 LineNumberTable 和 LocalVariableTable",
	"cli.opt_no_cache":    "不使用构建缓存",
	"cli.opt_diagnostics": "错误输出格式：文本或 LSP 诊断 JSON（text/json）",
	"cli.opt_max_steps":   "最多执行的指令数",
	"cli.opt_stats":       "输出执行统计",
	"cli.opt_force":       "覆盖已有文件",

	"cli.read_failed":    "无法读取 %s: %v",
	"cli.built":          "✓ 已生成 JVM class: %s (%d 字节)",
	"cli.cached":         "✓ 无需更新: %s (%d 字节)",
	"cli.stack_ok":       "; 栈检查: 最大深度 %d",
	"cli.stack_bad":      "; 栈检查失败:",
	"cli.config_written": "✓ 已写入 %s",
	"cli.config_exists":  "%s 已存在 (使用 --force 覆盖)",
	"cli.version":        "kforge %s",
	"cli.version_desc":   "Kotlin 子集的 JVM 后端，输出 %s class 文件",
	"cli.stats":          "指令: %d, 调用: %d, 本地方法: %d, 分配: %d, 最大深度: %d",
	"cli.failed":         "编译失败",

	// ========== 配置 ==========
	"config.read_failed":  "无法读取配置 %s",
	"config.parse_failed": "配置无效 %s",
	"config.bad_value":    "%s 的值无效: %v",
}
