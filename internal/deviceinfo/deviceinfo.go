// Package deviceinfo reads static device facts (model, brand, sdk
// level, screen geometry) via shell property lookups, cached for the
// life of the process since they never change.
package deviceinfo

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/hemiaoio/android-auto-test/internal/shell"
)

type Info struct {
	Model       string
	Brand       string
	SDK         int
	ScreenW     int
	ScreenH     int
	Density     float64
	IsPrivileged bool
}

type Provider struct {
	exec shell.Executor

	once sync.Once
	info Info
	err  error
}

func New(exec shell.Executor) *Provider {
	return &Provider{exec: exec}
}

func (p *Provider) Get(ctx context.Context) (Info, error) {
	p.once.Do(func() {
		p.info, p.err = p.load(ctx)
	})
	return p.info, p.err
}

func (p *Provider) load(ctx context.Context) (Info, error) {
	model := p.getprop(ctx, "ro.product.model")
	brand := p.getprop(ctx, "ro.product.brand")
	sdkStr := p.getprop(ctx, "ro.build.version.sdk")
	sdk, _ := strconv.Atoi(strings.TrimSpace(sdkStr))

	w, h, density := p.screenGeometry(ctx)

	_, err := p.exec.Run(ctx, "id -u", true, 0)
	privileged := err == nil

	return Info{
		Model:        model,
		Brand:        brand,
		SDK:          sdk,
		ScreenW:      w,
		ScreenH:      h,
		Density:      density,
		IsPrivileged: privileged,
	}, nil
}

func (p *Provider) getprop(ctx context.Context, key string) string {
	res, err := p.exec.Run(ctx, "getprop "+key, false, 0)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

func (p *Provider) screenGeometry(ctx context.Context) (w, h int, density float64) {
	res, err := p.exec.Run(ctx, "wm size", false, 0)
	if err == nil {
		for _, line := range strings.Split(res.Stdout, "\n") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				dims := strings.TrimSpace(line[idx+1:])
				parts := strings.Split(dims, "x")
				if len(parts) == 2 {
					w, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
					h, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
				}
			}
		}
	}
	densityRes, err := p.exec.Run(ctx, "wm density", false, 0)
	if err == nil {
		for _, line := range strings.Split(densityRes.Stdout, "\n") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				d, _ := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
				density = float64(d) / 160.0
			}
		}
	}
	return
}
