package node

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/encodeous/opera/perf"
	"github.com/encodeous/opera/state"
)

const (
	pprofAddr = "0.0.0.0:6060"
	// dispatched functions slower than this are reported
	slowDispatch = 4 * time.Millisecond
)

var (
	runtimeModule = reflect.TypeOf(&Runtime{}).String()
	controlModule = reflect.TypeOf(&Control{}).String()
)

// RuntimeOf returns the runtime module of a started node. It must be called
// on the dispatch goroutine.
func RuntimeOf(s *state.State) *Runtime {
	return s.Modules[runtimeModule].(*Runtime)
}

// Options changes how Start wires the node. The zero value runs on the
// configured multicast group with console logging.
type Options struct {
	Level      slog.Level
	Timestamps bool
	// replaces the console and file handlers
	Logger *slog.Logger
	// replaces the multicast transport
	Transport Transport
	// no SIGINT/SIGTERM handling
	NoSignals bool
	// called on the dispatch goroutine once the modules are initialized
	Ready func(s *state.State)
}

// Bootstrap reads node.yaml and runs the node until it is stopped.
func Bootstrap(nodePath, logPath string, opt Options) error {
	if state.DBG_trace {
		stop, err := startTrace("trace.out")
		if err != nil {
			return err
		}
		defer stop()
	}
	if state.DBG_debug {
		go func() {
			slog.Warn("pprof server exited", "err", http.ListenAndServe(pprofAddr, nil))
		}()
	}
	cfg, err := ReadNodeConfig(nodePath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	return Start(*cfg, opt)
}

func startTrace(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		trace.Stop()
		_ = f.Close()
	}, nil
}

// Start runs the node until its context is cancelled.
func Start(cfg state.NodeCfg, opt Options) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	logger, err := buildLogger(cfg, opt)
	if err != nil {
		return err
	}
	transport := opt.Transport
	if transport == nil {
		m, err := ListenMulticast(ctx, cfg.Transport)
		if err != nil {
			return err
		}
		transport = m
	}

	dispatch := make(chan func(env *state.State) error, 128)
	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         cfg,
			Log:             logger,
		},
	}

	if err := initModules(s,
		&Runtime{Transport: transport},
		&Control{Addr: cfg.Control},
	); err != nil {
		shutdown(s)
		return err
	}
	s.Log.Info("Opera has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	if !opt.NoSignals {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		go func() {
			select {
			case got := <-sig:
				s.Cancel(errors.New("received " + got.String()))
			case <-ctx.Done():
			}
		}()
	}
	if opt.Ready != nil {
		opt.Ready(s)
	}
	run(s, dispatch)
	shutdown(s)
	return nil
}

func initModules(s *state.State, modules ...state.NyModule) error {
	for _, m := range modules {
		name := reflect.TypeOf(m).String()
		s.Modules[name] = m
		if err := m.Init(s); err != nil {
			return err
		}
		s.Log.Debug("module ready", "module", name)
	}
	return nil
}

// run executes dispatched functions one at a time until the node context
// ends or a nil function is dispatched.
func run(s *state.State, dispatch <-chan func(*state.State) error) {
	s.Started.Store(true)
	for {
		var fn func(*state.State) error
		select {
		case fn = <-dispatch:
		case <-s.Context.Done():
		}
		if fn == nil {
			break
		}
		begin := time.Now()
		if err := fn(s); err != nil {
			s.Log.Error("dispatch failed", "err", err)
			s.Cancel(err)
		}
		took := time.Since(begin)
		perf.DispatchLatency.Add(float64(took.Microseconds()))
		if took > slowDispatch {
			name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
			s.Log.Warn("slow dispatch", "fn", name, "took", took, "queued", len(dispatch))
		}
	}
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context))
}

// shutdown cancels the node and cleans up its modules once.
func shutdown(s *state.State) {
	if s.Stopping.Swap(true) {
		return
	}
	s.Cancel(context.Canceled)
	for name, m := range s.Modules {
		if err := m.Cleanup(s); err != nil {
			s.Log.Error("cleanup failed", "module", name, "err", err)
		}
	}
	s.Log.Info("stopped")
}
