package analytics

import (
	"context"

	"github.com/elastic/go-sysinfo"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/xerrors"

	sysinfotypes "github.com/elastic/go-sysinfo/types"

	"github.com/searchd/analytics/buildinfo"
)

// InstanceConfig is the static configuration of the running instance that
// is reported in every snapshot.
type InstanceConfig struct {
	Version              string
	Environment          string
	MaxIndexSize         uint64
	MaxTaskDBSize        uint64
	HTTPPayloadSizeLimit uint64
	SnapshotEnabled      bool
	// MetricsEnabled is the instance-wide metrics toggle, fixed at startup.
	MetricsEnabled bool
}

// RuntimeFeatures are the toggles that can be flipped while the instance
// runs.
type RuntimeFeatures struct {
	ScoreDetails bool
	VectorStore  bool
}

// Snapshot describes the host and the configuration of an installation at
// the time it was collected.
type Snapshot struct {
	System   SystemTraits   `json:"System configuration"`
	Instance InstanceTraits `json:"Instance configuration"`
}

type SystemTraits struct {
	Distribution       string `json:"Distribution,omitempty"`
	KernelVersion      string `json:"Kernel Version,omitempty"`
	OSVersion          string `json:"OS Version,omitempty"`
	Architecture       string `json:"Architecture,omitempty"`
	TotalMemory        uint64 `json:"Total RAM (in bytes)"`
	UsedMemory         uint64 `json:"Used RAM (in bytes)"`
	CPUCount           int    `json:"Nb CPUs"`
	AvgCPUFrequencyMHz uint64 `json:"Avg CPU frequency"`
	TotalDiskSpace     uint64 `json:"Total disk space (in bytes)"`
	AvailableDiskSpace uint64 `json:"Available disk space (in bytes)"`
}

type InstanceTraits struct {
	Version              string        `json:"Package version"`
	Environment          string        `json:"Environment"`
	MaxIndexSize         uint64        `json:"Max index size"`
	MaxTaskDBSize        uint64        `json:"Max task db size"`
	HTTPPayloadSizeLimit uint64        `json:"HTTP payload size limit"`
	SnapshotEnabled      bool          `json:"Snapshot enabled"`
	Features             FeatureTraits `json:"Experimental features"`
}

type FeatureTraits struct {
	ScoreDetails bool `json:"Score details"`
	VectorStore  bool `json:"Vector store"`
	Metrics      bool `json:"Metrics"`
}

// DiskUsage is the capacity of one mounted device.
type DiskUsage struct {
	Device string
	Total  uint64
	Free   uint64
}

// TraitCollector builds Snapshots from live host state. Every source can
// fail on its own; the fields it feeds are then left zero.
type TraitCollector struct {
	config          InstanceConfig
	runtimeFeatures func() RuntimeFeatures
	hostInfo        func() (sysinfotypes.HostInfo, error)
	memory          func() (*sysinfotypes.HostMemoryInfo, error)
	cpuInfo         func(ctx context.Context) ([]cpu.InfoStat, error)
	cpuCount        func(ctx context.Context) (int, error)
	diskUsage       func(ctx context.Context) ([]DiskUsage, error)
}

type TraitOption func(*TraitCollector)

// WithRuntimeFeatures sets the getter for toggles that may change at
// runtime. It is called on every Collect.
func WithRuntimeFeatures(fn func() RuntimeFeatures) TraitOption {
	return func(c *TraitCollector) {
		c.runtimeFeatures = fn
	}
}

func WithHostInfo(fn func() (sysinfotypes.HostInfo, error)) TraitOption {
	return func(c *TraitCollector) {
		c.hostInfo = fn
	}
}

func WithMemory(fn func() (*sysinfotypes.HostMemoryInfo, error)) TraitOption {
	return func(c *TraitCollector) {
		c.memory = fn
	}
}

func WithCPUInfo(fn func(ctx context.Context) ([]cpu.InfoStat, error)) TraitOption {
	return func(c *TraitCollector) {
		c.cpuInfo = fn
	}
}

func WithCPUCount(fn func(ctx context.Context) (int, error)) TraitOption {
	return func(c *TraitCollector) {
		c.cpuCount = fn
	}
}

func WithDiskUsage(fn func(ctx context.Context) ([]DiskUsage, error)) TraitOption {
	return func(c *TraitCollector) {
		c.diskUsage = fn
	}
}

func NewTraitCollector(config InstanceConfig, opts ...TraitOption) *TraitCollector {
	if config.Version == "" {
		config.Version = buildinfo.Version()
	}
	c := &TraitCollector{
		config:          config,
		runtimeFeatures: func() RuntimeFeatures { return RuntimeFeatures{} },
		hostInfo: func() (sysinfotypes.HostInfo, error) {
			host, err := sysinfo.Host()
			if err != nil {
				return sysinfotypes.HostInfo{}, xerrors.Errorf("get host info: %w", err)
			}
			return host.Info(), nil
		},
		memory: func() (*sysinfotypes.HostMemoryInfo, error) {
			host, err := sysinfo.Host()
			if err != nil {
				return nil, xerrors.Errorf("get host info: %w", err)
			}
			return host.Memory()
		},
		cpuInfo: cpu.InfoWithContext,
		cpuCount: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
		diskUsage: hostDiskUsage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect never fails. Unavailable facts are reported as zero values.
func (c *TraitCollector) Collect(ctx context.Context) Snapshot {
	features := c.runtimeFeatures()
	snapshot := Snapshot{
		Instance: InstanceTraits{
			Version:              c.config.Version,
			Environment:          c.config.Environment,
			MaxIndexSize:         c.config.MaxIndexSize,
			MaxTaskDBSize:        c.config.MaxTaskDBSize,
			HTTPPayloadSizeLimit: c.config.HTTPPayloadSizeLimit,
			SnapshotEnabled:      c.config.SnapshotEnabled,
			Features: FeatureTraits{
				ScoreDetails: features.ScoreDetails,
				VectorStore:  features.VectorStore,
				Metrics:      c.config.MetricsEnabled,
			},
		},
	}

	system := &snapshot.System
	if info, err := c.hostInfo(); err == nil {
		system.KernelVersion = info.KernelVersion
		system.Architecture = info.Architecture
		if info.OS != nil {
			system.Distribution = info.OS.Name
			system.OSVersion = info.OS.Version
		}
	}
	if mem, err := c.memory(); err == nil && mem != nil {
		system.TotalMemory = mem.Total
		system.UsedMemory = mem.Used
	}

	cpus, err := c.cpuInfo(ctx)
	if err != nil {
		cpus = nil
	}
	system.AvgCPUFrequencyMHz = averageFrequency(cpus)
	if count, err := c.cpuCount(ctx); err == nil && count > 0 {
		system.CPUCount = count
	} else {
		system.CPUCount = len(cpus)
	}

	if disks, err := c.diskUsage(ctx); err == nil {
		system.TotalDiskSpace, system.AvailableDiskSpace = sumDisks(disks)
	}
	return snapshot
}

func averageFrequency(cpus []cpu.InfoStat) uint64 {
	if len(cpus) == 0 {
		return 0
	}
	var total float64
	for _, c := range cpus {
		total += c.Mhz
	}
	return uint64(total / float64(len(cpus)))
}

// sumDisks counts each device once, since the same device is commonly
// mounted at several paths in containers.
func sumDisks(disks []DiskUsage) (total, free uint64) {
	seen := make(map[string]struct{}, len(disks))
	for _, d := range disks {
		if d.Device != "" {
			if _, ok := seen[d.Device]; ok {
				continue
			}
			seen[d.Device] = struct{}{}
		}
		total += d.Total
		free += d.Free
	}
	return total, free
}

func hostDiskUsage(ctx context.Context) ([]DiskUsage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, xerrors.Errorf("list partitions: %w", err)
	}
	disks := make([]DiskUsage, 0, len(partitions))
	for _, partition := range partitions {
		usage, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue
		}
		disks = append(disks, DiskUsage{
			Device: partition.Device,
			Total:  usage.Total,
			Free:   usage.Free,
		})
	}
	return disks, nil
}
