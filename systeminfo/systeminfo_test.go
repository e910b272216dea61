package systeminfo

import (
	"context"
	"errors"
	"testing"

	"fimon/logger"

	"github.com/shirou/gopsutil/v4/host"
)

func init() {
	logger.Init("error")
}

func TestGetHostInfo(t *testing.T) {
	info := GetHostInfo(context.Background())
	if info.Hostname == "" {
		t.Fatal("expected a hostname")
	}
}

func TestGetHostInfoFromStat(t *testing.T) {
	orig := hostInfoFn
	defer func() { hostInfoFn = orig }()
	hostInfoFn = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Hostname: "web-1", OS: "linux", Platform: "debian", PlatformVersion: "12", BootTime: 1700000000}, nil
	}

	info := GetHostInfo(context.Background())
	if info.Hostname != "web-1" || info.OS != "linux" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.BootTime != "2023-11-14T22:13:20Z" {
		t.Fatalf("boot time = %q", info.BootTime)
	}
	if got := info.Label(); got != "web-1 (debian 12)" {
		t.Fatalf("label = %q", got)
	}
}

func TestGetHostInfoFallback(t *testing.T) {
	orig := hostInfoFn
	defer func() { hostInfoFn = orig }()
	hostInfoFn = func(context.Context) (*host.InfoStat, error) {
		return nil, errors.New("no host data")
	}

	info := GetHostInfo(context.Background())
	if info.Hostname == "" {
		t.Fatal("fallback should still produce a hostname")
	}
	if info.Label() != info.Hostname {
		t.Fatalf("label without platform should be the hostname, got %q", info.Label())
	}
}
