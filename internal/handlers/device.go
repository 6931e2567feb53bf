package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/capability"
	"github.com/hemiaoio/android-auto-test/internal/deviceinfo"
	"github.com/hemiaoio/android-auto-test/internal/router"
	"github.com/hemiaoio/android-auto-test/internal/shell"
)

// Device bundles the dependencies shared by the device.* handlers.
type Device struct {
	resolver *capability.Resolver
	exec     shell.Executor
	info     *deviceinfo.Provider
}

func NewDevice(resolver *capability.Resolver, exec shell.Executor, info *deviceinfo.Provider) *Device {
	return &Device{resolver: resolver, exec: exec, info: info}
}

// RegisterHandlers binds every device.* method to r.
func (d *Device) RegisterHandlers(r *router.Router) {
	r.Register(&deviceInfoHandler{d})
	r.Register(&deviceScreenshotHandler{d})
	r.Register(&deviceShellHandler{d})
	r.Register(&deviceInputKeyHandler{d})
	r.Register(&deviceWakeHandler{d})
	r.Register(&deviceRebootHandler{d})
	r.Register(&deviceRotationHandler{d})
	r.Register(&deviceClipboardHandler{d})
}

type deviceInfoHandler struct{ d *Device }

func (h *deviceInfoHandler) Method() string          { return "device.info" }
func (h *deviceInfoHandler) Validate(params []byte) error { return nil }

func (h *deviceInfoHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	info, err := h.d.info.Get(ctx)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDeviceOffline, err.Error())
	}
	return map[string]any{
		"model":      info.Model,
		"brand":      info.Brand,
		"sdk":        info.SDK,
		"screenW":    info.ScreenW,
		"screenH":    info.ScreenH,
		"density":    info.Density,
		"privileged": info.IsPrivileged,
	}, nil
}

type screenshotParams struct {
	Quality int     `json:"quality"`
	Scale   float64 `json:"scale"`
}

type deviceScreenshotHandler struct{ d *Device }

func (h *deviceScreenshotHandler) Method() string { return "device.screenshot" }
func (h *deviceScreenshotHandler) Validate(params []byte) error {
	if len(params) == 0 {
		return nil
	}
	var p screenshotParams
	return json.Unmarshal(params, &p)
}

func (h *deviceScreenshotHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p screenshotParams
	_ = json.Unmarshal(params, &p)
	if p.Quality == 0 {
		p.Quality = 80
	}
	if p.Scale == 0 {
		p.Scale = 1.0
	}

	capture, ok := h.d.resolver.ResolveCapture()
	if !ok {
		return nil, agenterr.New(agenterr.CodeHierarchyUnavailable, "no capture strategy available")
	}
	data, format, err := capture.Screenshot(ctx, p.Quality, p.Scale)
	if err != nil {
		return nil, agenterr.New(agenterr.CodePermissionDenied, err.Error())
	}
	return map[string]string{
		"data":   base64.StdEncoding.EncodeToString(data),
		"format": format,
	}, nil
}

type shellParams struct {
	Command      string `json:"command"`
	AsPrivileged bool   `json:"asPrivileged"`
	TimeoutMs    int    `json:"timeoutMs"`
}

type deviceShellHandler struct{ d *Device }

func (h *deviceShellHandler) Method() string { return "device.shell" }
func (h *deviceShellHandler) Validate(params []byte) error {
	var p shellParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func (h *deviceShellHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p shellParams
	_ = json.Unmarshal(params, &p)
	if p.AsPrivileged && !h.d.resolver.Flags().PrivilegedShell {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "privileged shell is not available")
	}
	res, err := h.d.exec.Run(ctx, p.Command, p.AsPrivileged, time.Duration(p.TimeoutMs)*time.Millisecond)
	if err != nil && res.ExitCode == -1 {
		return nil, agenterr.New(agenterr.CodeTimeout, err.Error())
	}
	return map[string]any{
		"exitCode": res.ExitCode,
		"stdout":   res.Stdout,
		"stderr":   res.Stderr,
	}, nil
}

type inputKeyParams struct {
	KeyCode int `json:"keyCode"`
}

type deviceInputKeyHandler struct{ d *Device }

func (h *deviceInputKeyHandler) Method() string { return "device.inputKey" }
func (h *deviceInputKeyHandler) Validate(params []byte) error {
	var p inputKeyParams
	return json.Unmarshal(params, &p)
}

func (h *deviceInputKeyHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p inputKeyParams
	_ = json.Unmarshal(params, &p)
	in, ok := h.d.resolver.ResolveInput()
	if !ok {
		return nil, agenterr.New(agenterr.CodePrivilegeRequired, "no input strategy available")
	}
	if err := in.KeyEvent(ctx, p.KeyCode); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	return map[string]any{"success": true}, nil
}

type deviceWakeHandler struct{ d *Device }

func (h *deviceWakeHandler) Method() string          { return "device.wake" }
func (h *deviceWakeHandler) Validate(params []byte) error { return nil }

func (h *deviceWakeHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	res, err := h.d.exec.Run(ctx, "dumpsys power | grep mHoldingWakeLockSuspendBlocker", true, 0)
	wasAsleep := err != nil || res.Stdout == ""
	if _, err := h.d.exec.Run(ctx, "input keyevent KEYCODE_WAKEUP", true, 0); err != nil {
		return map[string]any{"wasAsleep": wasAsleep, "success": false}, nil
	}
	return map[string]any{"wasAsleep": wasAsleep, "success": true}, nil
}

type rebootParams struct {
	Mode string `json:"mode"`
}

type deviceRebootHandler struct{ d *Device }

func (h *deviceRebootHandler) Method() string { return "device.reboot" }
func (h *deviceRebootHandler) Validate(params []byte) error {
	if len(params) == 0 {
		return nil
	}
	var p rebootParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	switch p.Mode {
	case "", "normal", "recovery", "bootloader":
		return nil
	default:
		return fmt.Errorf("invalid reboot mode: %s", p.Mode)
	}
}

func (h *deviceRebootHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p rebootParams
	_ = json.Unmarshal(params, &p)
	cmd := "reboot"
	if p.Mode != "" && p.Mode != "normal" {
		cmd = "reboot " + p.Mode
	}
	if _, err := h.d.exec.Run(ctx, cmd, true, 0); err != nil {
		return map[string]bool{"success": false}, nil
	}
	return map[string]bool{"success": true}, nil
}

type rotationParams struct {
	Rotation *int `json:"rotation,omitempty"`
}

type deviceRotationHandler struct{ d *Device }

func (h *deviceRotationHandler) Method() string { return "device.rotation" }
func (h *deviceRotationHandler) Validate(params []byte) error {
	if len(params) == 0 {
		return nil
	}
	var p rotationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Rotation != nil && (*p.Rotation < 0 || *p.Rotation > 3) {
		return fmt.Errorf("rotation must be 0..3")
	}
	return nil
}

func (h *deviceRotationHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p rotationParams
	_ = json.Unmarshal(params, &p)
	if p.Rotation != nil {
		if _, err := h.d.exec.Run(ctx, fmt.Sprintf("settings put system user_rotation %d", *p.Rotation), true, 0); err != nil {
			return nil, agenterr.New(agenterr.CodePermissionDenied, err.Error())
		}
		return map[string]int{"rotation": *p.Rotation}, nil
	}
	res, err := h.d.exec.Run(ctx, "settings get system user_rotation", true, 0)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDeviceOffline, err.Error())
	}
	var rotation int
	fmt.Sscanf(res.Stdout, "%d", &rotation)
	return map[string]int{"rotation": rotation}, nil
}

type clipboardParams struct {
	Text *string `json:"text,omitempty"`
}

type deviceClipboardHandler struct{ d *Device }

func (h *deviceClipboardHandler) Method() string { return "device.clipboard" }
func (h *deviceClipboardHandler) Validate(params []byte) error {
	if len(params) == 0 {
		return nil
	}
	var p clipboardParams
	return json.Unmarshal(params, &p)
}

func (h *deviceClipboardHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p clipboardParams
	_ = json.Unmarshal(params, &p)
	if p.Text != nil {
		cmd := fmt.Sprintf("am broadcast -a clipper.set -e text %q", *p.Text)
		if _, err := h.d.exec.Run(ctx, cmd, true, 0); err != nil {
			return nil, agenterr.New(agenterr.CodePermissionDenied, err.Error())
		}
		return map[string]bool{"success": true}, nil
	}
	res, err := h.d.exec.Run(ctx, "am broadcast -a clipper.get", true, 0)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDeviceOffline, err.Error())
	}
	return map[string]string{"text": res.Stdout}, nil
}
