// Package cli wires the process together: flag parsing, logger setup,
// config load and server startup.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"

	"github.com/xpzchen/image-manager/internal/cache"
	"github.com/xpzchen/image-manager/internal/config"
	"github.com/xpzchen/image-manager/internal/decoder"
	"github.com/xpzchen/image-manager/internal/journal"
	"github.com/xpzchen/image-manager/internal/lifecycle"
	"github.com/xpzchen/image-manager/internal/scan"
	"github.com/xpzchen/image-manager/internal/server"
)

type Option struct {
	Config string `long:"config" description:"Path to config file" default:""`
	Addr   string `long:"addr" description:"Listen address, overrides the config file" default:""`

	Meta MetaOption `group:"Meta Options"`
}

type MetaOption struct {
	Version bool `short:"V" long:"version" description:"Show version"`
}

func Run(v Version) error {
	var opt Option
	parser := flags.NewParser(&opt, flags.Default)
	parser.Name = v.AppName
	parser.Usage = "[OPTIONS]"
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	if opt.Meta.Version {
		fmt.Fprint(os.Stdout, v.Print())
		return nil
	}

	cfg, err := config.Parse(opt.Config)
	if err != nil {
		return err
	}
	if opt.Addr != "" {
		cfg.Server.Addr = opt.Addr
	}

	setupLogger(cfg.Core.Logging)
	slog.Debug("starting", "version", v.Version, "revision", v.Revision, "buildDate", v.BuildDate)

	adapter := decoder.NewAdapter(cfg)
	rc, err := cache.New(cfg.Cache, adapter)
	if err != nil {
		return err
	}
	if removed, err := rc.Prune(); err != nil {
		slog.Warn("cache prune failed", "error", err)
	} else if removed > 0 {
		slog.Info("pruned rendition cache", "removed", removed)
	}

	engine := lifecycle.New(cfg.Core, journal.NewFileStore())
	scanner := scan.New(cfg, adapter)

	return server.New(cfg, engine, rc, scanner).ListenAndServe()
}

func setupLogger(lc config.LoggingConfig) {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           level,
		Formatter: func() log.Formatter {
			if strings.ToLower(lc.Format) == "json" {
				return log.JSONFormatter
			}
			return log.TextFormatter
		}(),
	})
	slog.SetDefault(slog.New(logger))
}
