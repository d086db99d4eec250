package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// MaxTraceFrames bounds the trace kept on fragment failures.
const MaxTraceFrames = 5

// CaptureTrace records up to MaxTraceFrames frames above the caller.
func CaptureTrace(skip int) []string {
	pcs := make([]uintptr, MaxTraceFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

// TruncateStack turns a debug.Stack dump into at most MaxTraceFrames frames,
// dropping the goroutine header and the runtime panic frames.
func TruncateStack(stack []byte) []string {
	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	var frames []string
	for i := 1; i+1 < len(lines); i += 2 {
		fn := strings.TrimSpace(lines[i])
		if strings.HasPrefix(fn, "runtime/debug.Stack") || strings.HasPrefix(fn, "panic(") || strings.HasPrefix(fn, "runtime.") {
			continue
		}
		frames = append(frames, fn+"\n\t"+strings.TrimSpace(lines[i+1]))
		if len(frames) == MaxTraceFrames {
			break
		}
	}
	return frames
}
