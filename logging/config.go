package logging

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink names known to the client.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
)

// Console output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config controls the event router and the sinks the client builds for it.
type Config struct {
	// EnabledSinks limits delivery to the named sinks. Empty delivers to
	// every sink handed to NewRouter.
	EnabledSinks    []string
	BufferSize      int
	MinimumSeverity Severity
	Fields          map[string]any
	Console         ConsoleConfig
	// JSONFile is appended to by the json sink. Empty disables that sink.
	JSONFile          string
	JSONFlushInterval time.Duration
	DropWarnInterval  time.Duration
	// Fallback receives the router's own warnings. Defaults to the logrus
	// standard logger.
	Fallback logrus.FieldLogger
}

type ConsoleConfig struct {
	UseColor bool
	Format   string
}

// Settings are the log options a client is started with.
type Settings struct {
	Level    string
	Format   string
	JSONFile string
}

// DefaultConfig logs info and above to the console as text.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:      []string{SinkConsole},
		BufferSize:        256,
		MinimumSeverity:   SeverityInfo,
		DropWarnInterval:  10 * time.Second,
		JSONFlushInterval: time.Second,
		Console:           ConsoleConfig{Format: FormatText},
	}
}

// ConfigFor applies the client's log settings to DefaultConfig. Unknown
// levels keep info, unknown formats fall back to text, and a JSON file
// path enables the json sink.
func ConfigFor(s Settings) Config {
	cfg := DefaultConfig()
	if s.Level != "" {
		cfg.MinimumSeverity = ParseSeverity(s.Level)
	}
	cfg.Console.Format = consoleFormat(s.Format)
	if path := strings.TrimSpace(s.JSONFile); path != "" {
		cfg.JSONFile = path
		cfg.EnabledSinks = append(cfg.EnabledSinks, SinkJSON)
	}
	return cfg
}

func consoleFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return FormatJSON
	}
	return FormatText
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.EnabledSinks, name)
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}
