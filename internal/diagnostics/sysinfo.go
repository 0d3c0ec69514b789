package diagnostics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

const unknown = "unknown"

// DiskInfo describes one mounted filesystem.
type DiskInfo struct {
	Device     string
	Mountpoint string
	Fstype     string
	TotalBytes uint64
	FreeBytes  uint64
}

// NetInfo holds the traffic counters of one interface.
type NetInfo struct {
	Name      string
	BytesRecv uint64
	BytesSent uint64
}

// SensorInfo is one temperature reading.
type SensorInfo struct {
	Key         string
	Temperature float64
}

// Sysinfo is a point-in-time description of the machine. Fields that could
// not be read are left zero.
type Sysinfo struct {
	Timestamp time.Time

	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	KernelArch      string

	CPUModel   string
	CPUCores   int
	CPUThreads int
	LoadAvg1   float64
	LoadAvg5   float64
	LoadAvg15  float64

	MemTotal  uint64
	MemUsed   uint64
	SwapTotal uint64
	SwapUsed  uint64

	Disks    []DiskInfo
	Networks []NetInfo
	Sensors  []SensorInfo
	GPUs     []string
}

// CollectSysinfo reads what it can about the machine.
func CollectSysinfo() Sysinfo {
	s := Sysinfo{Timestamp: time.Now().UTC()}

	if info, err := host.Info(); err == nil {
		s.Hostname = info.Hostname
		s.OS = info.OS
		s.Platform = info.Platform
		s.PlatformVersion = info.PlatformVersion
		s.KernelVersion = info.KernelVersion
		s.KernelArch = info.KernelArch
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		s.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.Counts(false); err == nil {
		s.CPUCores = cores
	}
	if threads, err := cpu.Counts(true); err == nil {
		s.CPUThreads = threads
	}
	if avg, err := load.Avg(); err == nil {
		s.LoadAvg1, s.LoadAvg5, s.LoadAvg15 = avg.Load1, avg.Load5, avg.Load15
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotal, s.MemUsed = vm.Total, vm.Used
	}
	if sw, err := mem.SwapMemory(); err == nil {
		s.SwapTotal, s.SwapUsed = sw.Total, sw.Used
	}

	if parts, err := disk.Partitions(false); err == nil {
		for _, p := range parts {
			d := DiskInfo{Device: p.Device, Mountpoint: p.Mountpoint, Fstype: p.Fstype}
			if usage, err := disk.Usage(p.Mountpoint); err == nil {
				d.TotalBytes, d.FreeBytes = usage.Total, usage.Free
			}
			s.Disks = append(s.Disks, d)
		}
	}

	if counters, err := net.IOCounters(true); err == nil {
		for _, c := range counters {
			s.Networks = append(s.Networks, NetInfo{Name: c.Name, BytesRecv: c.BytesRecv, BytesSent: c.BytesSent})
		}
	}

	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			s.Sensors = append(s.Sensors, SensorInfo{Key: t.SensorKey, Temperature: t.Temperature})
		}
	}

	s.GPUs = queryGPUNames()
	return s
}

func queryGPUNames() []string {
	info, err := ghw.GPU()
	if err != nil || info == nil {
		return nil
	}

	names := make([]string, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			if card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil {
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			} else if card.DeviceInfo.Product != nil {
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		names = append(names, name)
	}
	return names
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// WriteTo writes the sectioned text dump.
func (s Sysinfo) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "=> collected: %s\n", s.Timestamp.Format(time.RFC3339))
	b.WriteString("=> system:\n")
	fmt.Fprintf(&b, "total memory: %d bytes\n", s.MemTotal)
	fmt.Fprintf(&b, "used memory : %d bytes\n", s.MemUsed)
	fmt.Fprintf(&b, "total swap  : %d bytes\n", s.SwapTotal)
	fmt.Fprintf(&b, "used swap   : %d bytes\n", s.SwapUsed)
	fmt.Fprintf(&b, "System name:             %s\n", orUnknown(s.OS))
	fmt.Fprintf(&b, "System kernel version:   %s\n", orUnknown(s.KernelVersion))
	fmt.Fprintf(&b, "System OS version:       %s\n", orUnknown(strings.TrimSpace(s.Platform+" "+s.PlatformVersion)))
	fmt.Fprintf(&b, "System architecture:     %s\n", orUnknown(s.KernelArch))
	fmt.Fprintf(&b, "System host name:        %s\n", orUnknown(s.Hostname))
	fmt.Fprintf(&b, "CPU model: %s\n", orUnknown(s.CPUModel))
	fmt.Fprintf(&b, "NB CPUs: %d (%d threads)\n", s.CPUCores, s.CPUThreads)
	fmt.Fprintf(&b, "load average: %.2f %.2f %.2f\n", s.LoadAvg1, s.LoadAvg5, s.LoadAvg15)
	fmt.Fprintf(&b, "go runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	b.WriteString("=> disks:\n")
	for _, d := range s.Disks {
		fmt.Fprintf(&b, "%s on %s type %s: %d of %d bytes free\n", d.Device, d.Mountpoint, d.Fstype, d.FreeBytes, d.TotalBytes)
	}

	b.WriteString("=> networks:\n")
	for _, n := range s.Networks {
		fmt.Fprintf(&b, "%s: %d B (down) / %d B (up)\n", n.Name, n.BytesRecv, n.BytesSent)
	}

	b.WriteString("=> components:\n")
	for _, c := range s.Sensors {
		fmt.Fprintf(&b, "%s: %.1f°C\n", c.Key, c.Temperature)
	}

	b.WriteString("=> gpus:\n")
	for _, g := range s.GPUs {
		fmt.Fprintf(&b, "%s\n", g)
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Summary is the one-line description used in logs.
func (s Sysinfo) Summary() string {
	return fmt.Sprintf("System='%s' Kernel='%s' OS='%s' Hostname=%s",
		orUnknown(s.OS), orUnknown(s.KernelVersion),
		orUnknown(strings.TrimSpace(s.Platform+" "+s.PlatformVersion)), orUnknown(s.Hostname))
}

// LogSysinfo logs a one-line system description at level.
func LogSysinfo(logger *slog.Logger, level slog.Level) {
	if logger == nil {
		return
	}
	s := Sysinfo{}
	if info, err := host.Info(); err == nil {
		s.Hostname = info.Hostname
		s.OS = info.OS
		s.Platform = info.Platform
		s.PlatformVersion = info.PlatformVersion
		s.KernelVersion = info.KernelVersion
	}
	logger.Log(context.Background(), level, s.Summary())
}

// SysinfoDumper appends machine descriptions to sysinfo.txt in a run
// directory.
type SysinfoDumper struct {
	dir     string
	logger  *slog.Logger
	collect func() Sysinfo
}

// NewSysinfoDumper creates a dumper for the run directory dir.
func NewSysinfoDumper(dir string, logger *slog.Logger) *SysinfoDumper {
	return &SysinfoDumper{dir: dir, logger: logger, collect: CollectSysinfo}
}

// Path returns the dump file location.
func (d *SysinfoDumper) Path() string {
	return filepath.Join(d.dir, core.SysinfoFileName)
}

// Dump appends a fresh description. Failures are logged and returned; callers
// treat them as best effort.
func (d *SysinfoDumper) Dump() error {
	path := d.Path()
	// #nosec G304 -- path is inside the run directory
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		d.warn(path, err)
		return fmt.Errorf("opening %s: %w", path, err)
	}

	if _, err := d.collect().WriteTo(f); err != nil {
		_ = f.Close()
		d.warn(path, err)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		d.warn(path, err)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func (d *SysinfoDumper) warn(path string, err error) {
	if d.logger != nil {
		d.logger.Warn("cannot create system information", "path", path, "error", err)
	}
}
