//go:build !windows

package i18n

func systemChinese() bool { return envChinese() }
