package systeminfo

import (
	"context"
	"os"
	"strings"
	"time"

	"fimon/logger"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo identifies the machine a report or alert came from.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	BootTime        string `json:"boot_time,omitempty"`
}

var hostInfoFn = host.InfoWithContext

// GetHostInfo gathers host identity. Failures fall back to os.Hostname and
// never return an error so alerts always carry a host label.
func GetHostInfo(ctx context.Context) HostInfo {
	info := HostInfo{}
	stat, err := hostInfoFn(ctx)
	if err != nil {
		logger.Debugf("Failed to gather host info: %v", err)
	} else if stat != nil {
		info.Hostname = stat.Hostname
		info.OS = stat.OS
		info.Platform = stat.Platform
		info.PlatformVersion = stat.PlatformVersion
		info.KernelVersion = stat.KernelVersion
		if stat.BootTime > 0 {
			info.BootTime = time.Unix(int64(stat.BootTime), 0).UTC().Format(time.RFC3339)
		}
	}
	if strings.TrimSpace(info.Hostname) == "" {
		if name, err := os.Hostname(); err == nil {
			info.Hostname = name
		}
	}
	if info.Hostname == "" {
		info.Hostname = "unknown"
	}
	return info
}

// Label returns a short human-readable host description.
func (h HostInfo) Label() string {
	parts := []string{h.Hostname}
	if h.Platform != "" {
		platform := h.Platform
		if h.PlatformVersion != "" {
			platform += " " + h.PlatformVersion
		}
		parts = append(parts, "("+platform+")")
	}
	return strings.Join(parts, " ")
}
