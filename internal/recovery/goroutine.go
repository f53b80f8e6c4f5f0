package recovery

import (
	"runtime/debug"

	"github.com/resurrectci/resurrectci/internal/logger"
)

// SafeGo runs fn in a goroutine with panic recovery so a single background
// worker cannot take the whole server down.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic recovered in goroutine %q: %v", name, r)
				logger.Debugf("Stack trace:\n%s", debug.Stack())
			}
		}()
		fn()
	}()
}
