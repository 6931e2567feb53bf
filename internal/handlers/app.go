package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hemiaoio/android-auto-test/internal/agenterr"
	"github.com/hemiaoio/android-auto-test/internal/appmgr"
	"github.com/hemiaoio/android-auto-test/internal/router"
)

// App wraps an appmgr.Manager to serve the app.* methods.
type App struct {
	mgr *appmgr.Manager
}

func NewApp(mgr *appmgr.Manager) *App {
	return &App{mgr: mgr}
}

func (a *App) RegisterHandlers(r *router.Router) {
	r.Register(&appLaunchHandler{a})
	r.Register(&appStopHandler{a})
	r.Register(&appClearHandler{a})
	r.Register(&appInstallHandler{a})
	r.Register(&appUninstallHandler{a})
	r.Register(&appListHandler{a})
	r.Register(&appInfoHandler{a})
	r.Register(&appPermissionsHandler{a})
}

type launchParams struct {
	PackageName string `json:"packageName"`
	Activity    string `json:"activity"`
	ClearState  bool   `json:"clearState"`
	WaitForIdle bool   `json:"waitForIdle"`
}

type appLaunchHandler struct{ a *App }

func (h *appLaunchHandler) Method() string { return "app.launch" }
func (h *appLaunchHandler) Validate(params []byte) error {
	var p launchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.PackageName == "" {
		return fmt.Errorf("packageName is required")
	}
	return nil
}

func (h *appLaunchHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p launchParams
	_ = json.Unmarshal(params, &p)
	res, err := h.a.mgr.Launch(ctx, p.PackageName, p.Activity, p.ClearState, p.WaitForIdle)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeAppLaunchTimeout, err.Error())
	}
	return map[string]any{"launchTimeMs": res.LaunchTimeMs, "packageName": res.PackageName}, nil
}

type pkgParams struct {
	PackageName string `json:"packageName"`
}

func (p pkgParams) validate() error {
	if p.PackageName == "" {
		return fmt.Errorf("packageName is required")
	}
	return nil
}

type appStopHandler struct{ a *App }

func (h *appStopHandler) Method() string { return "app.stop" }
func (h *appStopHandler) Validate(params []byte) error {
	var p pkgParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return p.validate()
}

func (h *appStopHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pkgParams
	_ = json.Unmarshal(params, &p)
	if err := h.a.mgr.Stop(ctx, p.PackageName); err != nil {
		return map[string]bool{"success": false}, nil
	}
	return map[string]bool{"success": true}, nil
}

type appClearHandler struct{ a *App }

func (h *appClearHandler) Method() string { return "app.clear" }
func (h *appClearHandler) Validate(params []byte) error {
	var p pkgParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return p.validate()
}

func (h *appClearHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pkgParams
	_ = json.Unmarshal(params, &p)
	output, err := h.a.mgr.Clear(ctx, p.PackageName)
	if err != nil {
		return map[string]any{"success": false, "output": output}, nil
	}
	return map[string]any{"success": true, "output": output}, nil
}

type installParams struct {
	Path             string `json:"path"`
	Replace          bool   `json:"replace"`
	GrantPermissions bool   `json:"grantPermissions"`
}

type appInstallHandler struct{ a *App }

func (h *appInstallHandler) Method() string { return "app.install" }
func (h *appInstallHandler) Validate(params []byte) error {
	var p installParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (h *appInstallHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p installParams
	_ = json.Unmarshal(params, &p)
	output, err := h.a.mgr.Install(ctx, p.Path, p.Replace, p.GrantPermissions)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeAppInstallFailed, err.Error())
	}
	return map[string]any{"success": true, "output": output}, nil
}

type appUninstallHandler struct{ a *App }

func (h *appUninstallHandler) Method() string { return "app.uninstall" }
func (h *appUninstallHandler) Validate(params []byte) error {
	var p pkgParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return p.validate()
}

func (h *appUninstallHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pkgParams
	_ = json.Unmarshal(params, &p)
	output, err := h.a.mgr.Uninstall(ctx, p.PackageName)
	if err != nil {
		return map[string]any{"success": false, "output": output}, nil
	}
	return map[string]any{"success": true, "output": output}, nil
}

type listParams struct {
	Filter string `json:"filter"`
}

type appListHandler struct{ a *App }

func (h *appListHandler) Method() string { return "app.list" }
func (h *appListHandler) Validate(params []byte) error {
	if len(params) == 0 {
		return nil
	}
	var p listParams
	return json.Unmarshal(params, &p)
}

func (h *appListHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p listParams
	_ = json.Unmarshal(params, &p)
	packages, err := h.a.mgr.List(ctx, p.Filter)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDeviceOffline, err.Error())
	}
	return map[string]any{"packages": packages, "count": len(packages)}, nil
}

type appInfoHandler struct{ a *App }

func (h *appInfoHandler) Method() string { return "app.info" }
func (h *appInfoHandler) Validate(params []byte) error {
	var p pkgParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return p.validate()
}

func (h *appInfoHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p pkgParams
	_ = json.Unmarshal(params, &p)
	info, err := h.a.mgr.Info(ctx, p.PackageName)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeAppNotInstalled, err.Error())
	}
	return map[string]any{
		"versionName":  info.VersionName,
		"versionCode":  info.VersionCode,
		"isRunning":    info.IsRunning,
		"installTimes": info.InstallTimes,
	}, nil
}

type permissionsParams struct {
	PackageName string   `json:"packageName"`
	Grant       []string `json:"grant,omitempty"`
	Revoke      []string `json:"revoke,omitempty"`
}

type appPermissionsHandler struct{ a *App }

func (h *appPermissionsHandler) Method() string { return "app.permissions" }
func (h *appPermissionsHandler) Validate(params []byte) error {
	var p permissionsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if p.PackageName == "" {
		return fmt.Errorf("packageName is required")
	}
	return nil
}

func (h *appPermissionsHandler) Handle(ctx context.Context, params []byte, rc router.RequestContext) (any, error) {
	var p permissionsParams
	_ = json.Unmarshal(params, &p)
	result, err := h.a.mgr.Permissions(ctx, p.PackageName, p.Grant, p.Revoke)
	if err != nil {
		return nil, agenterr.New(agenterr.CodePermissionDenied, err.Error())
	}
	return map[string]any{
		"granted": result.Granted,
		"revoked": result.Revoked,
		"list":    result.List,
	}, nil
}
