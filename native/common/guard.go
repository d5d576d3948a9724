package common

import "errors"

// ErrModulePaused is returned when a state-changing flow is attempted while
// its module is paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's flows are currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
