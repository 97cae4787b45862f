package opt

import (
	"log/slog"

	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

// WarningHandler receives non-fatal reconstruction diagnostics.
type WarningHandler func(idx param.Index, w recon.Warning)

// LogWarnings is the default WarningHandler.
func LogWarnings(idx param.Index, w recon.Warning) {
	slog.Warn("Amplitude exceeds bound",
		"param", idx.String(),
		"kind", w.Kind,
		"amplitude", w.Amplitude,
		"theta0", w.Theta0,
	)
}

// WarningLog collects warnings for later inspection. It is owned by the caller
// and is not safe for concurrent use.
type WarningLog struct {
	Entries []IndexedWarning
}

// IndexedWarning is a warning tagged with the parameter it came from.
type IndexedWarning struct {
	Index   param.Index
	Warning recon.Warning
}

// Handle implements WarningHandler.
func (l *WarningLog) Handle(idx param.Index, w recon.Warning) {
	l.Entries = append(l.Entries, IndexedWarning{Index: idx, Warning: w})
}
