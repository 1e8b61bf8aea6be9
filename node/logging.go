package node

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/encodeous/opera/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// consoleHandler prints colored records prefixed with the node id.
func consoleHandler(id state.NodeId, opt Options) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:        opt.Level,
		CustomPrefix: id.String(),
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if !opt.Timestamps && attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		},
	})
}

// fileHandler appends plain text records to path.
func fileHandler(path string, level slog.Level) (slog.Handler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	return slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}), nil
}

func buildLogger(cfg state.NodeCfg, opt Options) (*slog.Logger, error) {
	if opt.Logger != nil {
		return opt.Logger, nil
	}
	handlers := []slog.Handler{consoleHandler(cfg.Id, opt)}
	if cfg.LogPath != "" {
		h, err := fileHandler(cfg.LogPath, opt.Level)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}
