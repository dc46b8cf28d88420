// Package main provides a command-line tool for inspecting and patching
// Stingray stream archives.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/EchoTools/stingrayTools/pkg/codecs"
	"github.com/EchoTools/stingrayTools/pkg/config"
	"github.com/EchoTools/stingrayTools/pkg/frame"
	"github.com/EchoTools/stingrayTools/pkg/manager"
	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/search"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

var versionGitCommit string

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "stingraytools",
		Usage:   "Inspect, export and patch Stingray stream archives",
		Version: versionGitCommit,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "config", Value: config.DefaultFile, TakesFile: true, Usage: "Configuration file path", EnvVars: []string{"STINGRAYTOOLS_CONFIG"}},
			&cli.StringFlag{Name: "game-path", Usage: "Game data directory, overrides the configuration", EnvVars: []string{"GAME_PATH"}},
			&cli.StringFlag{Name: "metrics-file", TakesFile: true, Usage: "Write manager metrics to this file on exit"},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			listCommand,
			searchCommand,
			exportCommand,
			importCommand,
			duplicateCommand,
			meshCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// env is the state shared by every command: configuration, registry and a
// manager wired to them.
type env struct {
	cfg   *config.Config
	reg   *registry.Registry
	mgr   *manager.Manager
	cache *search.BoltCache
	log   *logrus.Entry

	metricsFile string
}

func newEnv(c *cli.Context) (*env, error) {
	log := logrus.WithField("command", c.Command.Name)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if p := c.String("game-path"); p != "" {
		cfg.GamePath = p
	}

	reg := registry.New(log)
	if err := reg.Load(cfg.RegistryPaths()); err != nil {
		return nil, err
	}

	var cache *search.BoltCache
	if cfg.Cache.Path != "" {
		codec, err := frame.ParseCodec(cfg.Cache.Codec)
		if err != nil {
			return nil, errors.Wrap(err, "cache codec")
		}
		if cache, err = search.OpenBoltCache(cfg.Cache.Path, codec); err != nil {
			return nil, err
		}
	}

	table := codecs.NewTable(cfg.Mesh, reg, nil, log)
	mgr := manager.New(cfg, reg, table, manager.Options{Log: log, Cache: cache})
	return &env{
		cfg:         cfg,
		reg:         reg,
		mgr:         mgr,
		cache:       cache,
		log:         log,
		metricsFile: c.String("metrics-file"),
	}, nil
}

func (e *env) close() {
	if e.metricsFile != "" {
		if err := e.mgr.Metrics().WriteToTextfile(e.metricsFile); err != nil {
			e.log.WithError(err).Warn("failed to write metrics")
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.log.WithError(err).Warn("failed to close index cache")
		}
	}
}

// action wraps a command body with env setup and teardown.
func action(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(c, e)
	}
}

// parseFileID accepts decimal, or hex with a 0x prefix.
func parseFileID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid file id %q", s)
	}
	return id, nil
}

var builtinTypes = []uint64{
	toc.UnitID, toc.TextureID, toc.CompositeUnitID, toc.MaterialID,
	toc.BoneID, toc.ParticleID, toc.AnimationID, toc.StateMachineID,
}

// parseTypeID accepts a built-in or hash list type name, or a hex id.
func parseTypeID(reg *registry.Registry, s string) (uint64, error) {
	for _, id := range builtinTypes {
		if toc.TypeName(id) == s {
			return id, nil
		}
	}
	if id, ok := reg.TypeNames.Lookup(s); ok {
		return id, nil
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Errorf("unknown type %q", s)
	}
	return id, nil
}

func typeLabel(reg *registry.Registry, id uint64) string {
	if name := toc.TypeName(id); name != "" {
		return name
	}
	if name := reg.TypeNames.Name(id); name != "" {
		return name
	}
	return fmt.Sprintf("%016x", id)
}
