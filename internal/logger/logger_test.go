package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestParseLevel 测试日志级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"未知级别默认info", "unknown", slog.LevelInfo},
		{"空字符串默认info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, 期望 %v", tt.input, got, tt.expected)
			}
		})
	}
}

// TestLevelTag 测试日志级别标签
func TestLevelTag(t *testing.T) {
	tests := []struct {
		name     string
		level    slog.Level
		expected string
	}{
		{"error", slog.LevelError, "ERROR"},
		{"warn", slog.LevelWarn, "WARN "},
		{"info", slog.LevelInfo, "INFO "},
		{"debug", slog.LevelDebug, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := levelTag(tt.level)
			if got != tt.expected {
				t.Errorf("levelTag(%v) = %q, 期望 %q", tt.level, got, tt.expected)
			}
		})
	}
}

// TestFormatAttr 测试属性格式化
func TestFormatAttr(t *testing.T) {
	tests := []struct {
		name     string
		group    string
		attr     slog.Attr
		expected string
	}{
		{
			name:     "无分组",
			group:    "",
			attr:     slog.String("key", "value"),
			expected: "  key=value",
		},
		{
			name:     "有分组",
			group:    "group",
			attr:     slog.String("key", "value"),
			expected: "  group.key=value",
		},
		{
			name:     "整数值",
			group:    "",
			attr:     slog.Int("port", 6410),
			expected: "  port=6410",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatAttr(tt.group, tt.attr)
			if got != tt.expected {
				t.Errorf("formatAttr(%q, %v) = %q, 期望 %q", tt.group, tt.attr, got, tt.expected)
			}
		})
	}
}

// TestConsoleHandlerEnabled 测试 consoleHandler 的级别过滤
func TestConsoleHandlerEnabled(t *testing.T) {
	h := &consoleHandler{level: slog.LevelInfo}

	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info 级别应该被启用")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Error 级别应该被启用")
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug 级别不应该被启用")
	}
}

// TestConsoleHandlerHandle 测试 consoleHandler 的日志输出
func TestConsoleHandlerHandle(t *testing.T) {
	var buf bytes.Buffer
	h := &consoleHandler{w: &buf, level: slog.LevelDebug}

	record := slog.NewRecord(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), slog.LevelInfo, "test message", 0)
	record.AddAttrs(slog.String("key", "value"))

	err := h.Handle(context.Background(), record)
	if err != nil {
		t.Fatalf("Handle() 返回错误: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "12:00:00") {
		t.Errorf("输出应包含时间戳, 实际: %q", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("输出应包含级别标签, 实际: %q", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("输出应包含消息, 实际: %q", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("输出应包含属性, 实际: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("输出应以换行符结尾, 实际: %q", output)
	}
}

// TestConsoleHandlerWithAttrs 测试 WithAttrs 创建新 handler
func TestConsoleHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &consoleHandler{w: &buf, level: slog.LevelDebug}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "relay")})

	// 原始 handler 不应该受影响
	if len(h.attrs) != 0 {
		t.Error("原始 handler 的 attrs 不应该被修改")
	}

	// 新 handler 应该有预设属性
	record := slog.NewRecord(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), slog.LevelInfo, "test", 0)
	err := h2.Handle(context.Background(), record)
	if err != nil {
		t.Fatalf("Handle() 返回错误: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "component=relay") {
		t.Errorf("输出应包含预设属性, 实际: %q", output)
	}
}

// TestConsoleHandlerWithGroup 测试 WithGroup 创建新 handler
func TestConsoleHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &consoleHandler{w: &buf, level: slog.LevelDebug}

	h2 := h.WithGroup("server")

	record := slog.NewRecord(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), slog.LevelInfo, "test", 0)
	record.AddAttrs(slog.String("addr", "127.0.0.1"))
	err := h2.Handle(context.Background(), record)
	if err != nil {
		t.Fatalf("Handle() 返回错误: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "server.addr=127.0.0.1") {
		t.Errorf("输出应包含分组前缀, 实际: %q", output)
	}
}

// TestConsoleHandlerWithNestedGroup 测试嵌套分组
func TestConsoleHandlerWithNestedGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &consoleHandler{w: &buf, level: slog.LevelDebug}

	h2 := h.WithGroup("server").WithGroup("config")

	record := slog.NewRecord(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), slog.LevelInfo, "test", 0)
	record.AddAttrs(slog.String("port", "6410"))
	err := h2.Handle(context.Background(), record)
	if err != nil {
		t.Fatalf("Handle() 返回错误: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "server.config.port=6410") {
		t.Errorf("输出应包含嵌套分组前缀, 实际: %q", output)
	}
}

// TestConsoleHandlerAttrsKeepTheirGroup 测试属性只带添加时所在的分组
func TestConsoleHandlerAttrsKeepTheirGroup(t *testing.T) {
	var buf bytes.Buffer
	h := &consoleHandler{w: &buf, level: slog.LevelDebug}

	h2 := h.WithAttrs([]slog.Attr{slog.String("session", "abc")}).
		WithGroup("g").
		WithAttrs([]slog.Attr{slog.String("inner", "x")})

	record := slog.NewRecord(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), slog.LevelInfo, "test", 0)
	record.AddAttrs(slog.Int("n", 1))
	if err := h2.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle() 返回错误: %v", err)
	}

	output := buf.String()
	for _, w := range []string{"  session=abc", "g.inner=x", "g.n=1"} {
		if !strings.Contains(output, w) {
			t.Errorf("输出应包含 %q, 实际: %q", w, output)
		}
	}
	if strings.Contains(output, "g.session") {
		t.Errorf("分组之前添加的属性不应带分组前缀, 实际: %q", output)
	}
}

// TestNewHandlerFormats 测试不同格式创建对应的 handler
func TestNewHandlerFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(h slog.Handler) bool
	}{
		{"json", func(h slog.Handler) bool { _, ok := h.(*slog.JSONHandler); return ok }},
		{"text", func(h slog.Handler) bool { _, ok := h.(*slog.TextHandler); return ok }},
		{"console", func(h slog.Handler) bool { _, ok := h.(*consoleHandler); return ok }},
		{"", func(h slog.Handler) bool { _, ok := h.(*consoleHandler); return ok }},
	}

	for _, tt := range tests {
		t.Run("format_"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			h := newHandler(Config{Level: "debug", Format: tt.format, Output: &buf})
			if !tt.check(h) {
				t.Errorf("format %q 得到了 %T", tt.format, h)
			}
		})
	}
}

// TestConsoleHandlerNoColorForBuffer 非终端输出不应包含颜色转义
func TestConsoleHandlerNoColorForBuffer(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(Config{Level: "info", Output: &buf})
	slog.New(h).Info("plain")

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("非终端输出不应包含 ANSI 转义, 实际: %q", buf.String())
	}
}

// TestColorize 测试级别颜色
func TestColorize(t *testing.T) {
	got := colorize(slog.LevelError, "ERROR")
	if got != "\x1b[31mERROR\x1b[0m" {
		t.Errorf("colorize(Error) = %q", got)
	}
	if !strings.Contains(colorize(slog.LevelDebug, "DEBUG"), "\x1b[90m") {
		t.Errorf("Debug 应为灰色")
	}
}

// TestConsoleHandlerConcurrent 并发写入时每行保持完整
func TestConsoleHandlerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(Config{Level: "debug", Output: &buf}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("line", "n", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("期望 50 行, 实际 %d 行", len(lines))
	}
	for _, l := range lines {
		if !strings.Contains(l, "INFO") || !strings.Contains(l, "line") {
			t.Errorf("行内容不完整: %q", l)
		}
	}
}
