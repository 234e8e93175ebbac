package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TextTimeFormat is the timestamp layout of text lines: dd.mm.yyyy HH:MM:SS.
const TextTimeFormat = "02.01.2006 15:04:05"

// Options selects level, format and sinks.
type Options struct {
	Level  string    // trace|debug|info|warn|error
	Format string    // text|json
	File   string    // append-only log file; empty disables it
	Out    io.Writer // console sink (default: os.Stderr)
}

// OptionsFromEnv reads LOG_LEVEL (default info), LOG_FORMAT (default text)
// and LOG_FILE (default yadisk_sync.log).
func OptionsFromEnv() Options {
	file := "yadisk_sync.log"
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		file = strings.TrimSpace(v)
	}
	return Options{
		Level:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		Format: strings.ToLower(getenv("LOG_FORMAT", "text")),
		File:   file,
	}
}

// InitFromEnv configures the global logger from env vars.
func InitFromEnv() (io.Closer, error) {
	return Init(OptionsFromEnv())
}

// Init configures the global zerolog logger. The returned closer releases the
// log file and must be called on exit.
func Init(o Options) (io.Closer, error) {
	zerolog.SetGlobalLevel(parseLevel(o.Level))

	console := o.Out
	if console == nil {
		console = os.Stderr
	}

	var file *os.File
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nopCloser{}, fmt.Errorf("open log file: %w", err)
		}
		file = f
	}

	var sinks []io.Writer
	if o.Format == "json" {
		// Always use UTC timestamps in RFC3339.
		zerolog.TimeFieldFormat = time.RFC3339
		zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
		sinks = append(sinks, console)
		if file != nil {
			sinks = append(sinks, file)
		}
	} else {
		zerolog.TimeFieldFormat = TextTimeFormat
		zerolog.TimestampFunc = time.Now
		sinks = append(sinks, textWriter(console, !isTerminal(console)))
		if file != nil {
			sinks = append(sinks, textWriter(file, true))
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(sinks...)).With().Timestamp().Logger()

	if file == nil {
		return nopCloser{}, nil
	}
	return file, nil
}

// textWriter renders "[dd.mm.yyyy HH:MM:SS LEVEL]: message key=value".
func textWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = out
		w.NoColor = noColor
		w.TimeFormat = TextTimeFormat
		w.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		w.FormatTimestamp = func(i any) string { return "[" + fmt.Sprint(i) }
		w.FormatLevel = func(i any) string { return levelName(i) + "]:" }
	})
}

func levelName(i any) string {
	s, _ := i.(string)
	switch s {
	case "warn":
		return "WARNING"
	case "fatal", "panic":
		return "CRITICAL"
	case "":
		return "INFO"
	default:
		return strings.ToUpper(s)
	}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// getenv returns the env var value if set and non-empty, otherwise def.
func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
