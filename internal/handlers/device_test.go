package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/deviceinfo"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/hemiaoio/android-auto-test/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceShellRequiresPrivilegeWhenNotAvailable(t *testing.T) {
	exec := newFakeExecutor()
	resolver := capability.New()
	resolver.UpdateCapabilities(capability.Flags{PrivilegedShell: false})
	d := NewDevice(resolver, exec, deviceinfo.New(exec))

	h := &deviceShellHandler{d}
	params, _ := json.Marshal(map[string]any{"command": "ls", "asPrivileged": true})

	_, err := h.Handle(context.Background(), params, router.RequestContext{})
	require.Error(t, err)
}

func TestDeviceShellRunsCommand(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("echo hi", shell.Result{ExitCode: 0, Stdout: "hi\n"})
	resolver := capability.New()
	d := NewDevice(resolver, exec, deviceinfo.New(exec))

	h := &deviceShellHandler{d}
	params, _ := json.Marshal(map[string]any{"command": "echo hi"})

	result, err := h.Handle(context.Background(), params, router.RequestContext{})
	require.NoError(t, err)

	m := result.(map[string]any)
	assert.Equal(t, "hi\n", m["stdout"])
	assert.Equal(t, 0, m["exitCode"])
}

func TestDeviceRotationGet(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("settings get system user_rotation", shell.Result{Stdout: "2"})
	resolver := capability.New()
	d := NewDevice(resolver, exec, deviceinfo.New(exec))

	h := &deviceRotationHandler{d}
	result, err := h.Handle(context.Background(), []byte(`{}`), router.RequestContext{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.(map[string]int)["rotation"])
}

func TestDeviceRotationValidateRejectsOutOfRange(t *testing.T) {
	h := &deviceRotationHandler{}
	params, _ := json.Marshal(map[string]any{"rotation": 7})
	assert.Error(t, h.Validate(params))
}
