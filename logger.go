package tensor

import (
	"log/slog"

	"github.com/gogpu/tensor/internal/obs"
)

// SetLogger configures the logger shared by tensor, eval, and
// scheduler/mercenary. By default, no log output is produced. Pass nil
// to restore the silent default.
func SetLogger(l *slog.Logger) {
	obs.SetLogger(l)
}

// Logger returns the currently configured logger.
func Logger() *slog.Logger {
	return obs.Logger()
}
