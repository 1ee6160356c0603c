package options

import (
	"io"
	"os"
)

var Getenv = os.Getenv

// RunOptions contains all the options that are relevant to a CLI run.
type RunOptions struct {
	// Config options
	*Config `json:"config,omitempty" yaml:"config,omitempty"`

	// --- Input source flags ---
	InputStrings   []string `json:"inputStrings,omitempty" yaml:"inputStrings,omitempty"`
	InputFiles     []string `json:"inputFiles,omitempty" yaml:"inputFiles,omitempty"`
	PositionalArgs []string `json:"positionalArgs,omitempty" yaml:"positionalArgs,omitempty"`

	// Output options
	Continuous  bool `json:"continuous,omitempty" yaml:"continuous,omitempty"`
	ShowSpinner bool `json:"showSpinner,omitempty" yaml:"showSpinner,omitempty"`
	// PrintUsage is set when the command was started with nothing to do.
	PrintUsage bool `json:"-" yaml:"-"`

	// Verbosity options
	Verbose   bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	DebugMode bool `json:"debugMode,omitempty" yaml:"debugMode,omitempty"`

	ReadlineHistoryFile string `json:"readlineHistoryFile,omitempty" yaml:"readlineHistoryFile,omitempty"`

	// --- I/O handles passed in ---
	Stdout io.Writer `json:"-" yaml:"-"`
	Stderr io.Writer `json:"-" yaml:"-"`
	Stdin  io.Reader `json:"-" yaml:"-"`

	ConfigPath string `json:"configPath,omitempty" yaml:"configPath,omitempty"`
}
