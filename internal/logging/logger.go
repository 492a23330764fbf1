package logging

import (
	"log"
	"os"
)

// defaultFlags matches the timestamp precision every sentineld subsystem
// logs with: microsecond resolution matters when reconstructing the order
// of ticks around a flapping monitor.
const defaultFlags = log.LstdFlags | log.Lmicroseconds

// New returns a logger tagged with component (e.g. "sentineld", "engine")
// so output from concurrently running subsystems stays attributable.
func New(component string) *log.Logger {
	return log.New(os.Stdout, componentPrefix(component), defaultFlags)
}

func componentPrefix(component string) string {
	if component == "" {
		return ""
	}
	return "[" + component + "] "
}
