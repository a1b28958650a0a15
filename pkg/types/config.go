package types

import (
	"runtime"
	"time"
)

// DefaultOutputPrefix marks processed output files. Files whose names start
// with it are never treated as inputs.
const DefaultOutputPrefix = "output_"

// ConversionBackend identifies the legacy-to-docx conversion tool.
type ConversionBackend string

const (
	BackendSoffice   ConversionBackend = "soffice"
	BackendContainer ConversionBackend = "container"
	BackendNone      ConversionBackend = "none"
)

// ConversionConfig holds settings for the legacy conversion stage.
type ConversionConfig struct {
	// Backend selects the conversion tool: soffice, container, or none.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// SofficePath is the LibreOffice binary used by the soffice backend.
	SofficePath string `json:"soffice_path" yaml:"soffice_path" mapstructure:"soffice_path"`

	// Image is the converter image used by the container backend.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// Timeout bounds a single file conversion.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ProcessConfig holds settings for the template stage.
type ProcessConfig struct {
	// OutputPrefix is prepended to the file name of every processed document.
	OutputPrefix string `json:"output_prefix" yaml:"output_prefix" mapstructure:"output_prefix"`

	// HeadersFooters extends rewriting to header and footer paragraphs.
	HeadersFooters bool `json:"headers_footers" yaml:"headers_footers" mapstructure:"headers_footers"`

	// Workers bounds how many documents are processed at once.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Force reprocesses documents the ledger reports as unchanged.
	Force bool `json:"force" yaml:"force" mapstructure:"force"`
}

// LedgerConfig holds settings for the processing ledger.
type LedgerConfig struct {
	// Enabled turns the ledger on.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file. Relative paths resolve against the
	// source directory.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// LoggingConfig holds settings for diagnostic logging.
type LoggingConfig struct {
	// Verbosity maps 0 to warn, 1 to info, 2 to debug and 3+ to trace.
	Verbosity int `json:"verbosity" yaml:"verbosity" mapstructure:"verbosity"`

	// File, when set, receives a rotated copy of the log.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// WatchConfig holds settings for watch mode.
type WatchConfig struct {
	// Debounce is how long a file must stay quiet before it is handled.
	Debounce time.Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
}

// Config groups every stage configuration.
type Config struct {
	// Dir is the source directory scanned for documents.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Recursive descends into sub-directories of Dir.
	Recursive bool `json:"recursive" yaml:"recursive" mapstructure:"recursive"`

	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Process    ProcessConfig    `json:"process" yaml:"process" mapstructure:"process"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging" mapstructure:"logging"`
	Watch      WatchConfig      `json:"watch" yaml:"watch" mapstructure:"watch"`
}

// DefaultConfig returns the configuration used when no file, environment
// variable or flag overrides a value.
func DefaultConfig() Config {
	return Config{
		Dir: ".",
		Conversion: ConversionConfig{
			Backend:     BackendSoffice,
			SofficePath: "soffice",
			Image:       "unoconv:latest",
			Timeout:     2 * time.Minute,
		},
		Process: ProcessConfig{
			OutputPrefix: DefaultOutputPrefix,
			Workers:      runtime.NumCPU(),
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    ".docx-templater/ledger.db",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}
