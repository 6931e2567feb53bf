package handlers

import (
	"context"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// fakeExecutor is a scripted shell.Executor for handler tests; it never
// touches a real shell.
type fakeExecutor struct {
	responses map[string]shell.Result
	commands  []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: make(map[string]shell.Result)}
}

func (f *fakeExecutor) on(command string, result shell.Result) {
	f.responses[command] = result
}

func (f *fakeExecutor) Run(ctx context.Context, command string, asPrivileged bool, timeout time.Duration) (shell.Result, error) {
	f.commands = append(f.commands, command)
	if r, ok := f.responses[command]; ok {
		return r, nil
	}
	return shell.Result{}, nil
}
