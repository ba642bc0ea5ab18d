// sections.go implements the individual snapshot collectors.

package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/strongdm/errtel/pkg/errtel"
)

// ApplicationInfo describes the running program.
type ApplicationInfo struct {
	StartTime  time.Time `json:"startTime"`
	Uptime     string    `json:"uptime"`
	UptimeSecs float64   `json:"uptimeSeconds"`
	Args       []string  `json:"args"`
	Executable string    `json:"executable,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// SystemInfo describes the host.
type SystemInfo struct {
	errtel.SystemContext
	NumCPU int `json:"numCpu"`
}

// PerformanceInfo describes current process resource usage.
type PerformanceInfo struct {
	Goroutines     int    `json:"goroutines"`
	Threads        int    `json:"threads"`
	GOMAXPROCS     int    `json:"gomaxprocs"`
	HeapAlloc      uint64 `json:"heapAllocBytes"`
	HeapAllocHuman string `json:"heapAlloc"`
	Sys            uint64 `json:"sysBytes"`
	SysHuman       string `json:"sys"`
	NumGC          uint32 `json:"numGc"`
	GCPauseTotal   string `json:"gcPauseTotal"`
}

// ComponentInfo is one module linked into the binary.
type ComponentInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Main    bool   `json:"main,omitempty"`
}

// NetworkInfo describes local interfaces and probe reachability.
type NetworkInfo struct {
	Interfaces []InterfaceInfo `json:"interfaces"`
	Probes     []ProbeResult   `json:"probes,omitempty"`
}

// InterfaceInfo is one network interface.
type InterfaceInfo struct {
	Name  string   `json:"name"`
	Up    bool     `json:"up"`
	Addrs []string `json:"addrs,omitempty"`
}

// ProbeResult is the outcome of one TCP reachability check.
type ProbeResult struct {
	Target    string `json:"target"`
	Reachable bool   `json:"reachable"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *Collector) collectApplication(ctx context.Context) (func(*DiagnosticInfo), error) {
	uptime := c.now().Sub(c.startedAt)
	app := &ApplicationInfo{
		StartTime:  c.startedAt,
		Uptime:     uptime.Round(time.Second).String(),
		UptimeSecs: uptime.Seconds(),
		Args:       append([]string(nil), os.Args...),
		Version:    c.version,
	}
	// A missing executable path is not worth dropping the section for.
	if exe, err := os.Executable(); err == nil {
		app.Executable = exe
	}
	return func(info *DiagnosticInfo) { info.Application = app }, nil
}

func (c *Collector) collectSystem(ctx context.Context) (func(*DiagnosticInfo), error) {
	sc, err := errtel.CaptureSystemContext(c.version)
	if err != nil {
		c.log.WarnContext(ctx, "system facts partially captured", "error", err)
	}
	if sc == nil {
		return nil, errors.New("no system context")
	}
	sys := &SystemInfo{SystemContext: *sc, NumCPU: runtime.NumCPU()}
	return func(info *DiagnosticInfo) { info.System = sys }, nil
}

func (c *Collector) collectPerformance(ctx context.Context) (func(*DiagnosticInfo), error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	perf := &PerformanceInfo{
		Goroutines:     runtime.NumGoroutine(),
		GOMAXPROCS:     runtime.GOMAXPROCS(0),
		HeapAlloc:      ms.HeapAlloc,
		HeapAllocHuman: humanize.IBytes(ms.HeapAlloc),
		Sys:            ms.Sys,
		SysHuman:       humanize.IBytes(ms.Sys),
		NumGC:          ms.NumGC,
		GCPauseTotal:   time.Duration(ms.PauseTotalNs).String(),
	}
	if p := pprof.Lookup("threadcreate"); p != nil {
		perf.Threads = p.Count()
	}
	return func(info *DiagnosticInfo) { info.Performance = perf }, nil
}

func (c *Collector) collectEnvironment(ctx context.Context) (func(*DiagnosticInfo), error) {
	env := RedactEnvironment(os.Environ(), c.terms)
	return func(info *DiagnosticInfo) { info.Environment = env }, nil
}

// RedactEnvironment turns KEY=VALUE pairs into a map, replacing the value of
// every key that contains one of terms (case-insensitively) with the
// redaction marker.
func RedactEnvironment(environ []string, terms []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		if key == "" {
			continue
		}
		if errtel.IsSensitiveKey(key, terms) {
			value = errtel.RedactionMarker
		}
		env[key] = value
	}
	return env
}

func (c *Collector) collectComponents(ctx context.Context) (func(*DiagnosticInfo), error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("build info unavailable")
	}
	comps := []ComponentInfo{{Path: bi.Main.Path, Version: bi.Main.Version, Main: true}}
	for _, dep := range bi.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		comps = append(comps, ComponentInfo{Path: mod.Path, Version: mod.Version})
	}
	sort.SliceStable(comps[1:], func(i, j int) bool { return comps[1+i].Path < comps[1+j].Path })
	return func(info *DiagnosticInfo) { info.Components = comps }, nil
}

func (c *Collector) collectNetwork(ctx context.Context) (func(*DiagnosticInfo), error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	ni := &NetworkInfo{}
	for _, iface := range ifaces {
		ii := InterfaceInfo{Name: iface.Name, Up: iface.Flags&net.FlagUp != 0}
		if addrs, err := iface.Addrs(); err == nil {
			for _, a := range addrs {
				ii.Addrs = append(ii.Addrs, a.String())
			}
		}
		ni.Interfaces = append(ni.Interfaces, ii)
	}
	for _, target := range c.probes {
		ni.Probes = append(ni.Probes, probe(ctx, target))
	}
	return func(info *DiagnosticInfo) { info.Network = ni }, nil
}

// probe dials target over TCP within ctx's deadline.
func probe(ctx context.Context, target string) ProbeResult {
	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return ProbeResult{Target: target, Error: err.Error()}
	}
	_ = conn.Close()
	return ProbeResult{Target: target, Reachable: true, Latency: time.Since(start).Round(time.Microsecond).String()}
}
