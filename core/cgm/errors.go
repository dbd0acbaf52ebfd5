package cgm

import (
	"fmt"
)

// Stage names a step of the compile state machine.
type Stage string

const (
	StageLoadSnapshot      Stage = "LoadSnapshot"
	StageResolvePlatform   Stage = "ResolvePlatform"
	StageResolveCapability Stage = "ResolveCapability"
	StageOrderModules      Stage = "OrderModules"
	StageExecute           Stage = "Execute"
	StageFinalize          Stage = "Finalize"
)

// CompileError wraps every failure of one node's compilation.
type CompileError struct {
	Node  string
	Stage Stage
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile node %s: %s: %v", e.Node, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// ModuleExecutionError wraps the failure of one generation module.
type ModuleExecutionError struct {
	Module string
	Order  int
	Err    error
}

func (e *ModuleExecutionError) Error() string {
	return fmt.Sprintf("module %s (order %d): %v", e.Module, e.Order, e.Err)
}

// Unwrap returns the module's error.
func (e *ModuleExecutionError) Unwrap() error {
	return e.Err
}
