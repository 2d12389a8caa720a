package logx

import (
	"fmt"
	"strings"
)

const (
	colorReset      = "\033[0m"
	colorRed        = "\033[31m"
	colorCyan       = "\033[36m"
	colorGray       = "\033[90m"
	colorWhite      = "\033[97m"
	colorBoldRed    = "\033[1;31m"
	colorBoldGreen  = "\033[1;32m"
	colorBoldYellow = "\033[1;33m"
	colorBoldCyan   = "\033[1;36m"
)

var levelBadges = map[Level]struct{ label, color string }{
	LevelTrace: {"TRACE", colorGray},
	LevelDebug: {"DEBUG", colorBoldCyan},
	LevelInfo:  {"INFO ", colorBoldGreen},
	LevelWarn:  {"WARN ", colorBoldYellow},
	LevelError: {"ERROR", colorBoldRed},
	LevelFatal: {"FATAL", colorBoldRed},
}

// ConsoleFormatter writes one human readable line per entry:
//
//	2026-01-02T15:04:05Z [INFO ] [file.go:12] message request_id=... k=v
//	  ╰─→ error: ...
type ConsoleFormatter struct {
	config *Config
}

func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var b strings.Builder

	if f.config.EnableTimestamp {
		f.paint(&b, colorGray, fmt.Sprint(timestampValue(entry.Timestamp, f.config.TimeFormat)))
		b.WriteByte(' ')
	}

	f.writeLevel(&b, entry.Level)
	b.WriteByte(' ')

	if f.config.EnableCaller && entry.Caller != "" {
		f.paint(&b, colorGray, "["+entry.Caller+"]")
		b.WriteByte(' ')
	}

	f.paint(&b, colorWhite, entry.Message)

	if len(entry.Fields) > 0 {
		pairs := make([]string, 0, len(entry.Fields))
		for _, k := range orderedKeys(entry.Fields) {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}
		b.WriteByte(' ')
		f.paint(&b, colorCyan, strings.Join(pairs, " "))
	}

	if entry.Error != nil {
		b.WriteByte('\n')
		if f.config.EnableColors {
			f.paint(&b, colorRed, "  ╰─→ error: "+entry.Error.Error())
		} else {
			b.WriteString("  error: " + entry.Error.Error())
		}
	}
	b.WriteByte('\n')

	if entry.Data != nil {
		for _, line := range strings.Split(indentJSON(entry.Data), "\n") {
			f.paint(&b, colorGray, "  "+line)
			b.WriteByte('\n')
		}
	}

	return []byte(b.String()), nil
}

func (f *ConsoleFormatter) writeLevel(b *strings.Builder, level Level) {
	badge, ok := levelBadges[level]
	if !ok || !f.config.EnableColors {
		b.WriteString("[" + level.String() + "]")
		return
	}
	f.paint(b, badge.color, "["+badge.label+"]")
}

func (f *ConsoleFormatter) paint(b *strings.Builder, color, s string) {
	if !f.config.EnableColors {
		b.WriteString(s)
		return
	}
	b.WriteString(color)
	b.WriteString(s)
	b.WriteString(colorReset)
}
