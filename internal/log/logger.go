package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// Logger interface defines structured logging methods
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that adds the key-value pairs to every line.
	// Children share the level and output of their parent.
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	// Stderr receives every log line; it defaults to os.Stderr so rendered
	// documents on stdout stay clean.
	Stderr io.Writer
}

// sink is the output shared by a logger and its children.
type sink struct {
	mu         sync.Mutex
	level      Level
	jsonOutput bool
	w          io.Writer
	colors     bool
}

// DefaultLogger is the default implementation of Logger.
type DefaultLogger struct {
	sink   *sink
	fields []interface{}
}

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	w := cfg.Stderr
	if w == nil {
		w = os.Stderr
	}
	return &DefaultLogger{sink: &sink{
		level:      cfg.Level,
		jsonOutput: cfg.JSONOutput,
		w:          w,
		colors:     isTerminal(w),
	}}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if f != os.Stderr && f != os.Stdout {
		return false
	}
	return isTTY()
}

// IsTTY checks if the standard output is a TTY
func IsTTY() bool {
	return isTTY()
}

// isTTY returns true if stdout is a terminal. NO_COLOR and TERM=dumb turn
// terminal features off.
func isTTY() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatMessage formats the message with key-value args
func formatMessage(msg string, args ...interface{}) string {
	if len(args) == 0 {
		return msg
	}

	var sb strings.Builder
	sb.WriteString(msg)

	if len(args)%2 != 0 {
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprintf("%v", args[0]))
		args = args[1:]
	}

	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(fmt.Sprintf("%v", args[i+1]))
	}

	return sb.String()
}

// fields collects key-value args for JSON output.
func fields(args []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args)/2)
	if len(args)%2 != 0 {
		out["extra"] = fmt.Sprintf("%v", args[0])
		args = args[1:]
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		switch v := args[i+1].(type) {
		case error:
			out[key] = v.Error()
		case fmt.Stringer:
			out[key] = v.String()
		default:
			out[key] = v
		}
	}
	return out
}

// colorize wraps the message with ANSI color codes if colors are enabled
func (s *sink) colorize(level Level, msg string) string {
	if !s.colors {
		return msg
	}
	return getColor(level) + msg + "\033[0m"
}

// getColor returns the ANSI color code for the given level
func getColor(level Level) string {
	switch level {
	case DebugLevel:
		return "\033[36m" // Cyan
	case InfoLevel:
		return "\033[32m" // Green
	case WarnLevel:
		return "\033[33m" // Yellow
	case ErrorLevel:
		return "\033[31m" // Red
	default:
		return ""
	}
}

// bind puts the logger fields after an unpaired leading argument.
func (l *DefaultLogger) bind(args []interface{}) []interface{} {
	if len(l.fields) == 0 {
		return args
	}
	out := make([]interface{}, 0, len(l.fields)+len(args))
	if len(args)%2 != 0 {
		out = append(out, args[0])
		args = args[1:]
	}
	out = append(out, l.fields...)
	return append(out, args...)
}

// log filters by level and writes one line.
func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	args = l.bind(args)

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	levelStr := level.String()

	if s.jsonOutput {
		entry := fields(args)
		entry["timestamp"] = timestamp
		entry["level"] = levelStr
		entry["message"] = msg
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(map[string]interface{}{
				"timestamp": timestamp,
				"level":     levelStr,
				"message":   formatMessage(msg, args...),
			})
		}
		fmt.Fprintln(s.w, string(data))
		return
	}

	fmt.Fprintf(s.w, "[%s] %s: %s\n", timestamp, levelStr, s.colorize(level, formatMessage(msg, args...)))
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, args)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, args)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, args)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, args)
}

// With implements Logger. An unpaired trailing key is dropped.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	if len(args)%2 != 0 {
		args = args[:len(args)-1]
	}
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	return &DefaultLogger{sink: l.sink, fields: append(fields, args...)}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.jsonOutput = enabled
}

// discard drops everything.
type discard struct{}

func (discard) Debug(string, ...interface{}) {}
func (discard) Info(string, ...interface{})  {}
func (discard) Warn(string, ...interface{})  {}
func (discard) Error(string, ...interface{}) {}
func (discard) SetLevel(Level)               {}
func (discard) SetJSONOutput(bool)           {}

func (d discard) With(...interface{}) Logger { return d }

// Discard returns a Logger that drops every message. Library packages use
// it when no logger is configured.
func Discard() Logger { return discard{} }

// ProgressSpinner provides a spinner for long-running operations
type ProgressSpinner struct {
	mu       sync.Mutex
	message  string
	spinner  []string
	current  int
	active   bool
	writer   io.Writer
	colors   bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewProgressSpinner creates a new progress spinner writing to w.
func NewProgressSpinner(w io.Writer, message string) *ProgressSpinner {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressSpinner{
		message:  message,
		spinner:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		writer:   w,
		colors:   isTerminal(w),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the spinner animation
func (p *ProgressSpinner) Start() {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	p.mu.Unlock()

	go p.animate()
}

// Stop stops the spinner and clears its line.
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.mu.Unlock()

	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.writer, "\r\033[K")
}

// Message updates the spinner message
func (p *ProgressSpinner) Message(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

// Count shows progress as "message (done/total)".
func (p *ProgressSpinner) Count(done, total int) {
	p.mu.Lock()
	if i := strings.LastIndex(p.message, " ("); i >= 0 && strings.HasSuffix(p.message, ")") {
		p.message = p.message[:i]
	}
	p.message = fmt.Sprintf("%s (%d/%d)", p.message, done, total)
	p.mu.Unlock()
}

// animate runs the spinner animation
func (p *ProgressSpinner) animate() {
	defer close(p.done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			p.draw()
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// draw renders the spinner to the terminal
func (p *ProgressSpinner) draw() {
	spinnerChar := p.spinner[p.current%len(p.spinner)]
	p.current++

	if p.colors {
		fmt.Fprintf(p.writer, "\r\033[36m%s\033[0m %s", spinnerChar, p.message)
	} else {
		fmt.Fprintf(p.writer, "\r%s %s", spinnerChar, p.message)
	}
}
