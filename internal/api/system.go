package api

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"time"
)

// SystemInfo is the body of GET /api/system/info.
type SystemInfo struct {
	Version       string          `json:"version"`
	GoVersion     string          `json:"goVersion"`
	Hostname      string          `json:"hostname"`
	OS            string          `json:"os"`
	Arch          string          `json:"arch"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	Memory        MemoryInfo      `json:"memory"`
	Interfaces    []InterfaceAddr `json:"interfaces"`
}

// MemoryInfo reports heap usage in megabytes.
type MemoryInfo struct {
	AllocMB float64 `json:"allocMb"`
	SysMB   float64 `json:"sysMb"`
}

// InterfaceAddr is one IPv4 address of a network interface.
type InterfaceAddr struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	writeJSON(w, http.StatusOK, SystemInfo{
		Version:       s.version,
		GoVersion:     runtime.Version(),
		Hostname:      hostname,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Memory: MemoryInfo{
			AllocMB: float64(mem.Alloc) / 1024 / 1024,
			SysMB:   float64(mem.Sys) / 1024 / 1024,
		},
		Interfaces: ipv4Interfaces(),
	})
}

// ipv4Interfaces lists non-loopback IPv4 addresses of interfaces that are up.
func ipv4Interfaces() []InterfaceAddr {
	out := []InterfaceAddr{}
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				out = append(out, InterfaceAddr{Name: iface.Name, Address: ip4.String()})
			}
		}
	}
	return out
}
