package tatara

import (
	"errors"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	RecipesDir      string
	CacheDir        string
	ArtifactDir     string
	LogStore        string
	DefaultBuildDir string
	artifactFormat  string
	Debug           bool
	Verbose         bool
	ConfigFile      = "/etc/tatara.conf"
	version         = "dev"     // default version; overridden at build time
	buildDate       = "unknown" // overridden at build time

	errPropertyNotSet = errors.New("recipe property not set")
	errRecipeNotFound = errors.New("recipe not found")

	// Global executors (declared, to be assigned in Main)
	UserExec *Executor
	RootExec *Executor

	// Host environment snapshot, taken once at process start. Build
	// environments are derived from this value only, never from ambient
	// state read mid-run.
	hostEnv map[string]string
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
