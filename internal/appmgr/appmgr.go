// Package appmgr implements app lifecycle operations (launch, stop,
// clear, install, uninstall, list, info, permissions) on top of the
// privileged shell executor, mirroring the package-manager/activity-
// manager shell surface a real device exposes.
package appmgr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hemiaoio/android-auto-test/internal/shell"
)

type Manager struct {
	exec shell.Executor
}

func New(exec shell.Executor) *Manager {
	return &Manager{exec: exec}
}

type LaunchResult struct {
	LaunchTimeMs int64
	PackageName  string
}

func (m *Manager) Launch(ctx context.Context, pkg, activity string, clearState, waitForIdle bool) (LaunchResult, error) {
	if clearState {
		if _, err := m.exec.Run(ctx, "pm clear "+pkg, true, 0); err != nil {
			return LaunchResult{}, err
		}
	}

	target := pkg
	if activity != "" {
		target = pkg + "/" + activity
	} else {
		target = pkg
	}

	start := time.Now()
	cmd := fmt.Sprintf("am start -n %s -W", target)
	if activity == "" {
		cmd = fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg)
	}
	if _, err := m.exec.Run(ctx, cmd, true, 0); err != nil {
		return LaunchResult{}, err
	}
	if waitForIdle {
		time.Sleep(500 * time.Millisecond)
	}
	return LaunchResult{LaunchTimeMs: time.Since(start).Milliseconds(), PackageName: pkg}, nil
}

func (m *Manager) Stop(ctx context.Context, pkg string) error {
	_, err := m.exec.Run(ctx, "am force-stop "+pkg, true, 0)
	return err
}

func (m *Manager) Clear(ctx context.Context, pkg string) (string, error) {
	res, err := m.exec.Run(ctx, "pm clear "+pkg, true, 0)
	return res.Stdout, err
}

func (m *Manager) Install(ctx context.Context, path string, replace, grantPermissions bool) (string, error) {
	args := "install"
	if replace {
		args += " -r"
	}
	if grantPermissions {
		args += " -g"
	}
	res, err := m.exec.Run(ctx, fmt.Sprintf("pm %s %s", args, path), true, 0)
	return res.Stdout, err
}

func (m *Manager) Uninstall(ctx context.Context, pkg string) (string, error) {
	res, err := m.exec.Run(ctx, "pm uninstall "+pkg, true, 0)
	return res.Stdout, err
}

func (m *Manager) List(ctx context.Context, filter string) ([]string, error) {
	res, err := m.exec.Run(ctx, "pm list packages", true, 0)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "package:"))
		if line == "" {
			continue
		}
		if filter != "" && !strings.Contains(line, filter) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

type Info struct {
	VersionName  string
	VersionCode  int
	IsRunning    bool
	InstallTimes int
}

func (m *Manager) Info(ctx context.Context, pkg string) (Info, error) {
	res, err := m.exec.Run(ctx, "dumpsys package "+pkg, true, 0)
	if err != nil {
		return Info{}, err
	}
	info := Info{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "versionName=") {
			info.VersionName = strings.TrimPrefix(line, "versionName=")
		}
		if strings.HasPrefix(line, "versionCode=") {
			fmt.Sscanf(strings.TrimPrefix(line, "versionCode="), "%d", &info.VersionCode)
		}
	}
	psRes, _ := m.exec.Run(ctx, "pidof "+pkg, true, 0)
	info.IsRunning = strings.TrimSpace(psRes.Stdout) != ""
	return info, nil
}

type Permissions struct {
	Granted []string
	Revoked []string
	List    []string
}

func (m *Manager) Permissions(ctx context.Context, pkg string, grant, revoke []string) (Permissions, error) {
	for _, p := range grant {
		if _, err := m.exec.Run(ctx, fmt.Sprintf("pm grant %s %s", pkg, p), true, 0); err != nil {
			return Permissions{}, err
		}
	}
	for _, p := range revoke {
		if _, err := m.exec.Run(ctx, fmt.Sprintf("pm revoke %s %s", pkg, p), true, 0); err != nil {
			return Permissions{}, err
		}
	}
	res, err := m.exec.Run(ctx, "dumpsys package "+pkg, true, 0)
	if err != nil {
		return Permissions{}, err
	}
	var list []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasSuffix(line, "granted=true") {
			parts := strings.Fields(line)
			if len(parts) > 0 {
				list = append(list, parts[0])
			}
		}
	}
	return Permissions{Granted: grant, Revoked: revoke, List: list}, nil
}
