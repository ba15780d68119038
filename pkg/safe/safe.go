package safe

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

const maxStackFrames = 20

// RunWithLog 执行 fn，panic 时记录组件名与堆栈
func RunWithLog(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", stackTrace(maxStackFrames)),
			)
		}
	}()

	fn()
}

// Call 执行 fn，panic 转为 error 返回
func Call(component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", stackTrace(maxStackFrames)),
			)
			err = fmt.Errorf("%s panic: %v", component, r)
		}
	}()

	return fn()
}

func stackTrace(limit int) string {
	lines := strings.Split(string(debug.Stack()), "\n")

	formatted := []string{"Stack trace:"}
	count := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if count >= limit*2 {
			formatted = append(formatted, "  ... (truncated)")
			break
		}
		formatted = append(formatted, "  "+line)
		count++
	}
	return strings.Join(formatted, "\n")
}
