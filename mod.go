// Package sharefs implements revocable file sharing between named principals.
// Files are stored encrypted with a key derived from a per-file IV and the
// owner's secret, and access is granted by delivering that key in tables that
// only the recipient can open. Revoking a grant rotates the IV of the file so
// that the previously delivered key stops working.
//
// The package itself only defines the global logger. See the sub-packages for
// the protocol (sharing), the storage abstraction (store) and the encrypted
// block filesystem (blockfs, vfs).
package sharefs

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default, it prints info
// level messages but it can be changed through the LLVL environment variable.
var Logger = zerolog.New(logout).Level(defaultLevel).
	With().Timestamp().Logger().
	With().Caller().Logger()

func init() {
	Logger = Logger.Level(parseLevel(os.Getenv(EnvLogLevel)))
}

func parseLevel(lvl string) zerolog.Level {
	switch lvl {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "none":
		return zerolog.Disabled
	default:
		return defaultLevel
	}
}
