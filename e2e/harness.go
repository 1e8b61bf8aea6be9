//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/testcontainers/testcontainers-go"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ImageName   = "opera-debug:latest"
	WaitTimeout = 2 * time.Minute
	// printed by opera run once every module is up
	readyLine = "Opera has been initialized"
)

// Harness runs opera containers on one docker bridge. Multicast between
// containers of a bridge stands in for the radio.
type Harness struct {
	t          *testing.T
	ctx        context.Context
	mu         sync.Mutex
	bridge     *testcontainers.DockerNetwork
	nodes      map[string]testcontainers.Container
	LogManager *LogManager
	RootDir    string
	Subnet     string
}

func NewHarness(t *testing.T) *Harness {
	rootDir, err := projectRoot()
	if err != nil {
		t.Fatal(err)
	}
	subnet, gateway := GlobalNetworkAllocator.Allocate()
	t.Logf("bridge subnet %s", subnet)

	bridge, err := tcnetwork.New(context.Background(),
		tcnetwork.WithAttachable(),
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithIPAM(&network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{{Subnet: subnet, Gateway: gateway}},
		}))
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		t:          t,
		ctx:        context.Background(),
		bridge:     bridge,
		nodes:      make(map[string]testcontainers.Container),
		LogManager: NewLogManager(),
		RootDir:    rootDir,
		Subnet:     subnet,
	}
	t.Cleanup(h.Cleanup)
	return h
}

func projectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", dir)
		}
		dir = parent
	}
}

type NodeSpec struct {
	Name           string
	IP             string
	NodeConfigPath string
}

// StartNodes starts every node concurrently and returns once all of them
// logged readyLine.
func (h *Harness) StartNodes(specs ...NodeSpec) {
	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Go(func() { h.StartNode(spec) })
	}
	wg.Wait()
}

func (h *Harness) StartNode(spec NodeSpec) testcontainers.Container {
	h.t.Logf("starting %s at %s", spec.Name, spec.IP)
	bridge := h.bridge.Name
	req := testcontainers.ContainerRequest{
		Name:           strings.ReplaceAll(h.t.Name(), "/", "-") + "-" + spec.Name,
		Image:          imageName,
		Networks:       []string{bridge},
		NetworkAliases: map[string][]string{bridge: {spec.Name}},
		Files: []testcontainers.ContainerFile{{
			HostFilePath:      spec.NodeConfigPath,
			ContainerFilePath: "/app/config/node.yaml",
			FileMode:          0644,
		}},
		WaitingFor: wait.ForLog(readyLine).WithStartupTimeout(30 * time.Second),
		EndpointSettingsModifier: func(m map[string]*network.EndpointSettings) {
			if s, ok := m[bridge]; ok && spec.IP != "" {
				s.IPAMConfig = &network.EndpointIPAMConfig{IPv4Address: spec.IP}
			}
		},
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{
				&UnifiedLogConsumer{Node: spec.Name, Manager: h.LogManager},
			},
		},
	}
	c, err := testcontainers.GenericContainer(h.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		h.t.Fatalf("starting %s: %v", spec.Name, err)
	}
	h.mu.Lock()
	h.nodes[spec.Name] = c
	h.mu.Unlock()
	return c
}

func (h *Harness) node(name string) testcontainers.Container {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.nodes[name]
	if !ok {
		h.t.Fatalf("node %s not found", name)
	}
	return c
}

// StopNode stops the container of a node, keeping it for RestartNode.
func (h *Harness) StopNode(name string) {
	timeout := 5 * time.Second
	if err := h.node(name).Stop(h.ctx, &timeout); err != nil {
		h.t.Fatalf("stopping %s: %v", name, err)
	}
}

// RestartNode starts a stopped node again. Its log history is cleared so
// waits only match the new run.
func (h *Harness) RestartNode(name string) {
	h.LogManager.Forget(name)
	if err := h.node(name).Start(h.ctx); err != nil {
		h.t.Fatalf("restarting %s: %v", name, err)
	}
	h.WaitForLog(name, readyLine)
}

// opera logs through tint on stderr
func (h *Harness) WaitForLog(name, pattern string) {
	h.waitFor(name, pattern, false)
}

func (h *Harness) WaitForMatch(name, pattern string) {
	h.waitFor(name, pattern, true)
}

func (h *Harness) waitFor(name, pattern string, isRegex bool) {
	sub, err := h.LogManager.Subscribe(name, SourceStderr, pattern, isRegex)
	if err != nil {
		h.t.Fatalf("bad pattern %q: %v", pattern, err)
	}
	defer h.LogManager.Unsubscribe(sub)
	select {
	case <-sub.MatchCh:
	case <-time.After(WaitTimeout):
		h.PrintLogs(name)
		h.t.Fatalf("%s did not log %q within %s", name, pattern, WaitTimeout)
	}
}

func (h *Harness) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.nodes {
		if err := c.Terminate(h.ctx); err != nil {
			h.t.Logf("terminating %s: %v", name, err)
		}
	}
	if err := h.bridge.Remove(h.ctx); err != nil {
		h.t.Logf("removing bridge: %v", err)
	}
}

// Exec runs cmd in a node and returns its demultiplexed, uncolored output.
func (h *Harness) Exec(name string, cmd []string) (stdout, stderr string, err error) {
	code, r, err := h.node(name).Exec(h.ctx, cmd)
	if err != nil {
		return "", "", err
	}
	var out, errOut bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errOut, r); err != nil {
		return "", "", fmt.Errorf("reading output of %v: %w", cmd, err)
	}
	stdout, stderr = StripAnsi(out.String()), StripAnsi(errOut.String())
	if code != 0 {
		return stdout, stderr, fmt.Errorf("%v exited with %d: %s", cmd, code, stderr)
	}
	return stdout, stderr, nil
}

// Ctl runs opera ctl inside the node against its own control socket.
func (h *Harness) Ctl(name string, args ...string) string {
	stdout, _, err := h.Exec(name, append([]string{"opera", "ctl"}, args...))
	if err != nil {
		h.t.Fatalf("opera ctl %v on %s: %v", args, name, err)
	}
	return stdout
}

func (h *Harness) PrintLogs(name string) {
	r, err := h.node(name).Logs(h.ctx)
	if err != nil {
		h.t.Logf("logs of %s: %v", name, err)
		return
	}
	defer r.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	h.t.Logf("logs of %s:\n%s", name, StripAnsi(buf.String()))
}
