package analytics_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	sysinfotypes "github.com/elastic/go-sysinfo/types"

	"github.com/searchd/analytics/analytics"
)

func TestTraitCollector(t *testing.T) {
	t.Parallel()

	config := analytics.InstanceConfig{
		Version:              "v1.2.0",
		Environment:          "production",
		MaxIndexSize:         100 << 30,
		MaxTaskDBSize:        100 << 30,
		HTTPPayloadSizeLimit: 100 << 20,
		SnapshotEnabled:      true,
		MetricsEnabled:       true,
	}

	t.Run("AllSources", func(t *testing.T) {
		t.Parallel()
		collector := analytics.NewTraitCollector(config,
			analytics.WithRuntimeFeatures(func() analytics.RuntimeFeatures {
				return analytics.RuntimeFeatures{VectorStore: true}
			}),
			analytics.WithHostInfo(func() (sysinfotypes.HostInfo, error) {
				return sysinfotypes.HostInfo{
					KernelVersion: "6.1.0",
					Architecture:  "x86_64",
					OS: &sysinfotypes.OSInfo{
						Name:    "Debian GNU/Linux",
						Version: "12 (bookworm)",
					},
				}, nil
			}),
			analytics.WithMemory(func() (*sysinfotypes.HostMemoryInfo, error) {
				return &sysinfotypes.HostMemoryInfo{Total: 8 << 30, Used: 2 << 30}, nil
			}),
			analytics.WithCPUInfo(func(context.Context) ([]cpu.InfoStat, error) {
				return []cpu.InfoStat{{Mhz: 2000}, {Mhz: 3000}}, nil
			}),
			analytics.WithCPUCount(func(context.Context) (int, error) {
				return 2, nil
			}),
			analytics.WithDiskUsage(func(context.Context) ([]analytics.DiskUsage, error) {
				return []analytics.DiskUsage{
					{Device: "/dev/sda1", Total: 100, Free: 40},
					// Bind mount of the same device.
					{Device: "/dev/sda1", Total: 100, Free: 40},
					{Device: "/dev/sdb1", Total: 50, Free: 10},
				}, nil
			}),
		)

		snapshot := collector.Collect(context.Background())
		require.Empty(t, cmp.Diff(analytics.SystemTraits{
			Distribution:       "Debian GNU/Linux",
			KernelVersion:      "6.1.0",
			OSVersion:          "12 (bookworm)",
			Architecture:       "x86_64",
			TotalMemory:        8 << 30,
			UsedMemory:         2 << 30,
			CPUCount:           2,
			AvgCPUFrequencyMHz: 2500,
			TotalDiskSpace:     150,
			AvailableDiskSpace: 50,
		}, snapshot.System))
		require.Equal(t, analytics.InstanceTraits{
			Version:              "v1.2.0",
			Environment:          "production",
			MaxIndexSize:         100 << 30,
			MaxTaskDBSize:        100 << 30,
			HTTPPayloadSizeLimit: 100 << 20,
			SnapshotEnabled:      true,
			Features: analytics.FeatureTraits{
				VectorStore: true,
				Metrics:     true,
			},
		}, snapshot.Instance)
	})

	t.Run("UnavailableSources", func(t *testing.T) {
		t.Parallel()
		failed := xerrors.New("not supported on this platform")
		collector := analytics.NewTraitCollector(config,
			analytics.WithHostInfo(func() (sysinfotypes.HostInfo, error) {
				return sysinfotypes.HostInfo{}, failed
			}),
			analytics.WithMemory(func() (*sysinfotypes.HostMemoryInfo, error) {
				return nil, failed
			}),
			analytics.WithCPUInfo(func(context.Context) ([]cpu.InfoStat, error) {
				return nil, failed
			}),
			analytics.WithCPUCount(func(context.Context) (int, error) {
				return 0, failed
			}),
			analytics.WithDiskUsage(func(context.Context) ([]analytics.DiskUsage, error) {
				return nil, failed
			}),
		)

		snapshot := collector.Collect(context.Background())
		require.Equal(t, analytics.SystemTraits{}, snapshot.System)
		require.Equal(t, "production", snapshot.Instance.Environment)
	})

	t.Run("NoCPUs", func(t *testing.T) {
		t.Parallel()
		collector := analytics.NewTraitCollector(config,
			analytics.WithCPUInfo(func(context.Context) ([]cpu.InfoStat, error) {
				return []cpu.InfoStat{}, nil
			}),
			analytics.WithCPUCount(func(context.Context) (int, error) {
				return 0, nil
			}),
		)

		snapshot := collector.Collect(context.Background())
		require.Zero(t, snapshot.System.AvgCPUFrequencyMHz)
		require.Zero(t, snapshot.System.CPUCount)
	})

	t.Run("CPUCountFallback", func(t *testing.T) {
		t.Parallel()
		collector := analytics.NewTraitCollector(config,
			analytics.WithCPUInfo(func(context.Context) ([]cpu.InfoStat, error) {
				return []cpu.InfoStat{{Mhz: 1000}, {Mhz: 1000}, {Mhz: 1000}}, nil
			}),
			analytics.WithCPUCount(func(context.Context) (int, error) {
				return 0, xerrors.New("unknown")
			}),
		)

		snapshot := collector.Collect(context.Background())
		require.Equal(t, 3, snapshot.System.CPUCount)
		require.Equal(t, uint64(1000), snapshot.System.AvgCPUFrequencyMHz)
	})

	t.Run("DefaultVersion", func(t *testing.T) {
		t.Parallel()
		collector := analytics.NewTraitCollector(analytics.InstanceConfig{},
			analytics.WithDiskUsage(func(context.Context) ([]analytics.DiskUsage, error) {
				return nil, nil
			}),
		)
		snapshot := collector.Collect(context.Background())
		require.NotEmpty(t, snapshot.Instance.Version)
	})

	t.Run("WireKeys", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(analytics.IdentifyTraits{
			UsageTraits: analytics.UsageTraits{IndexCount: 1},
		})
		require.NoError(t, err)

		var traits map[string]any
		require.NoError(t, json.Unmarshal(data, &traits))
		require.Contains(t, traits, "System configuration")
		require.Contains(t, traits, "Instance configuration")
		require.Contains(t, traits, "Number of indexes")
		require.Contains(t, traits, "Elapsed since start (in secs)")
		require.NotContains(t, traits, "User email")
	})
}
