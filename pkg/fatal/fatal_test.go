package fatal

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func TestHaltCallsExitFunc(t *testing.T) {
	var code int
	called := false
	old := exitFunc
	exitFunc = func(c int) {
		called = true
		code = c
	}
	defer func() { exitFunc = old }()

	Halt(logr.Discard(), "kernel panic", Context{VCPU: 1, Process: 2, Dispatch: "main"})

	require.True(t, called)
	require.Equal(t, 1, code)
}
