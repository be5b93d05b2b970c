package lump

import "github.com/charmbracelet/log"

// newPortLogger derives a component-scoped logger the way the rest of
// this codebase tags its loggers, so multi-port deployments can filter
// by device path.
func newPortLogger(base *log.Logger, devPath string) *log.Logger {
	if base == nil {
		base = log.Default()
	}
	return base.With("component", "lump", "device", devPath)
}
