package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/lingoleap/webauth"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const runtimeKey = "runtime"

func newApp() *cli.App {
	app := &cli.App{
		Name:  "webauth",
		Usage: "Sign in to the learning platform and call its API",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			routeCommand(),
			getCommand(),
			patchProfileCommand(),
		},
		Metadata: map[string]any{},
		After: func(c *cli.Context) error {
			if rt, ok := c.App.Metadata[runtimeKey].(*runtime); ok {
				delete(c.App.Metadata, runtimeKey)
				return rt.close()
			}
			return nil
		},
	}
	return app
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file",
			EnvVars: []string{"WEBAUTH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Extra .env file to load before reading the environment",
		},
		&cli.StringFlag{
			Name:    "base-url",
			Aliases: []string{"u"},
			Usage:   "Platform API base URL (e.g., https://lms.example.com/api)",
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Token store backend: badger, redis, memory",
			DefaultText: webauth.BackendBadger,
		},
		&cli.StringFlag{
			Name:  "store-dir",
			Usage: "Badger directory (default: <user config dir>/webauth/session)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// runtime is everything a command needs, opened on first use.
type runtime struct {
	config  webauth.Config
	logger  *zap.Logger
	store   webauth.Store
	session *webauth.Session
	client  *webauth.Client
}

func (r *runtime) close() error {
	err := errors.Join(r.session.Close(), r.store.Close())
	_ = r.logger.Sync()
	return err
}

func openRuntime(c *cli.Context) (*runtime, error) {
	if rt, ok := c.App.Metadata[runtimeKey].(*runtime); ok {
		return rt, nil
	}

	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	// flag defaults sit below the config file and WEBAUTH_* env; only flags
	// given on the command line override them
	defaults := map[string]any{
		"storage.backend": webauth.BackendBadger,
		"log.level":       "warn",
		"log.encoding":    "console",
	}
	if base, err := os.UserConfigDir(); err == nil {
		defaults["storage.badger.dir"] = filepath.Join(base, "webauth", "session")
	}

	overrides := map[string]any{}
	if c.IsSet("store") {
		overrides["storage.backend"] = c.String("store")
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	}
	if v := c.String("base-url"); v != "" {
		overrides["http.base_url"] = v
	}
	if v := c.String("store-dir"); v != "" {
		overrides["storage.badger.dir"] = v
	}

	opts := []webauth.LoadOption{webauth.WithDefaults(defaults), webauth.WithOverrides(overrides)}
	if path := c.String("config"); path != "" {
		opts = append(opts, webauth.WithConfigFile(path))
	}
	cfg, err := webauth.LoadConfig(opts...)
	if err != nil {
		return nil, err
	}

	logger, err := webauth.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	ctx := commandContext(c)
	st, err := webauth.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	sess, err := webauth.New().WithConfig(cfg).WithStore(st).WithLogger(logger).Build()
	if err != nil {
		_ = st.Close()
		_ = logger.Sync()
		return nil, err
	}
	if err := sess.Hydrate(ctx); err != nil {
		logger.Warn("could not restore the saved session", zap.Error(err))
	}

	nav := webauth.NavigatorFunc(func(route webauth.Route) {
		fmt.Fprintf(c.App.ErrWriter, "session expired; sign in again (%s)\n", route)
	})
	client, err := webauth.NewClient(sess, nav)
	if err != nil {
		_ = sess.Close()
		_ = st.Close()
		return nil, err
	}

	rt := &runtime{config: cfg, logger: logger, store: st, session: sess, client: client}
	c.App.Metadata[runtimeKey] = rt
	return rt, nil
}

func commandContext(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
