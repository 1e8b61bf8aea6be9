//go:build e2e

package e2e

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/encodeous/opera/state"
	"github.com/goccy/go-yaml"
)

// NetworkAllocator hands out a distinct /24 to every test so they can run
// in parallel.
type NetworkAllocator struct {
	mu   sync.Mutex
	next int
}

var GlobalNetworkAllocator = &NetworkAllocator{next: 1}

func (a *NetworkAllocator) Allocate() (subnet, gateway string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.next
	a.next++
	return fmt.Sprintf("172.29.%d.0/24", n), fmt.Sprintf("172.29.%d.1", n)
}

// GetIP returns host number host of subnet.
func GetIP(subnet string, host int) string {
	p := netip.MustParsePrefix(subnet)
	b := p.Addr().As4()
	b[3] = byte(host)
	return netip.AddrFrom4(b).String()
}

// SetupTestDir creates a directory for the current test run
func (h *Harness) SetupTestDir() string {
	dir := filepath.Join(h.RootDir, "e2e", "runs", h.t.Name())
	// Clean up previous run
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	return dir
}

// WriteConfig marshals the config to YAML and writes it to the specified directory with the given filename
func (h *Harness) WriteConfig(dir, filename string, cfg any) string {
	path := filepath.Join(dir, filename)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// SimpleNode creates a node config on the ocari clock with a short cycle
// and the control socket reachable from docker exec.
func SimpleNode(short uint16, root state.RootRole) state.NodeCfg {
	return state.NodeCfg{
		Id:          state.NodeIdFromShort(short),
		Preset:      "ocari",
		CycleLength: 20 * time.Millisecond,
		Root:        root,
		Transport: state.TransportCfg{
			Interface: "eth0",
		},
	}
}
