// Package config provides centralized configuration constants for plantrack.
// All default values should be defined here to ensure a single source of truth.
package config

// Plan document limits
const (
	// DefaultMaxSteps bounds the number of steps a single plan may declare
	DefaultMaxSteps = 200

	// MaxTitleLength bounds plan, phase and step titles, in characters
	MaxTitleLength = 200

	// MaxIDLength bounds plan, phase and step identifiers, in characters
	MaxIDLength = 128
)

// Layout spacing units, in abstract canvas units
const (
	DefaultHorizontalSpacing = 250.0
	DefaultVerticalSpacing   = 150.0
)

// DefaultSchemaVersions lists the document schema versions understood by the validators.
var DefaultSchemaVersions = []string{"1.0", "1.1"}

// DefaultPlanTypes is the supported planType vocabulary.
var DefaultPlanTypes = []string{
	"feature",
	"refactor",
	"migration",
	"bugfix",
	"optimization",
	"documentation",
}

// DefaultStepKinds is the supported step kind vocabulary. Action types share it.
var DefaultStepKinds = []string{
	"create_file",
	"edit_file",
	"delete_file",
	"run_command",
	"test",
	"review",
	"documentation",
	"custom",
}

// DefaultStepStates is the full status vocabulary.
var DefaultStepStates = []string{
	"pending",
	"in-progress",
	"done",
	"blocked",
	"skipped",
}

// Storage defaults
const (
	// DefaultDataDir is where plan stores live, relative to the working directory
	DefaultDataDir = ".plantrack"

	// DefaultStoreBackend selects the persistence adapter
	DefaultStoreBackend = "sqlite"

	// DefaultFileFormat is the encoding used by the file store
	DefaultFileFormat = "json"
)
