// Package installerconf resolves the daemon's tunable timer durations
// from the environment, the way the teacher's config/appconf package
// layers INSTALLERD_*-prefixed overrides on top of compiled-in defaults.
// Call Load once at startup (it loads a .env file via godotenv the same
// way main.go's init does) before reading any of the getters.
package installerconf

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default timer durations, spec §5's armed-timer list.
const (
	DefaultFirstMessageDeadline = 7 * time.Second
	DefaultPIDRetrievalDeadline = 5 * time.Second
	DefaultProgressDeferDelay   = 700 * time.Millisecond
	DefaultExitDelay            = 500 * time.Millisecond
)

// Load reads a .env file if present. Missing files are not an error, the
// same tolerant behavior main.go's godotenv.Load() call relies on.
func Load() {
	_ = godotenv.Load()
}

// FirstMessageDeadline is how long the daemon waits at startup for an
// installation input and an agent connection before exiting with failure.
func FirstMessageDeadline() time.Duration {
	return durationFromEnv("INSTALLERD_FIRST_MESSAGE_DEADLINE", DefaultFirstMessageDeadline)
}

// PIDRetrievalDeadline bounds how long the agent is given to resolve the
// relaunch PID after register_relaunch_bundle_path is dispatched.
func PIDRetrievalDeadline() time.Duration {
	return durationFromEnv("INSTALLERD_PID_RETRIEVAL_DEADLINE", DefaultPIDRetrievalDeadline)
}

// ProgressDeferDelay is how long the daemon waits, once host-termination
// watching begins, before deciding whether to ask the agent to show
// progress itself.
func ProgressDeferDelay() time.Duration {
	return durationFromEnv("INSTALLERD_PROGRESS_DEFER_DELAY", DefaultProgressDeferDelay)
}

// ExitDelay is the pause between INSTALLATION_FINISHED_STAGE_3 and the
// daemon's own exit, giving the relaunched app first claim on activation.
func ExitDelay() time.Duration {
	return durationFromEnv("INSTALLERD_EXIT_DELAY", DefaultExitDelay)
}

// BaseDir is the parent directory of every identifier's staging tree.
func BaseDir() string {
	if v := os.Getenv("INSTALLERD_BASE_DIR"); v != "" {
		return v
	}
	return "/var/lib/installerd"
}

// PackageInstallCommand is the command template the package backend
// expands and runs, with "{package}" substituted for the staged package
// path.
func PackageInstallCommand() string {
	if v := os.Getenv("INSTALLERD_PACKAGE_INSTALL_COMMAND"); v != "" {
		return v
	}
	return "installer -pkg {package} -target /"
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
