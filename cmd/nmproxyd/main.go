package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/nmproxy/config"
	"github.com/guseggert/nmproxy/daemon"
	"github.com/guseggert/nmproxy/internal/activation"
	"github.com/guseggert/nmproxy/internal/logging"
	"github.com/guseggert/nmproxy/registry"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "nmproxyd",
		Usage: "runs native messaging hosts on behalf of nmproxy clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a TOML config file.",
			},
			&cli.StringFlag{
				Name:  "registry-dir",
				Usage: "Directory of target descriptors. Overrides the config file.",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Unix socket path to listen on. Without it the daemon expects socket activation.",
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "Address to serve WebSocket sessions on, e.g. 127.0.0.1:8080.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error].",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadDaemon(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.IsSet("registry-dir") {
				cfg.RegistryDir = ctx.String("registry-dir")
			}
			if ctx.IsSet("socket") {
				cfg.Listen.Socket = ctx.String("socket")
			}
			if ctx.IsSet("http-addr") {
				cfg.Listen.HTTP = ctx.String("http-addr")
			}
			if ctx.IsSet("log-level") {
				cfg.LogLevel = ctx.String("log-level")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			reg, err := registry.Load(logger, cfg.RegistryDir)
			if err != nil {
				return fmt.Errorf("loading registry: %w", err)
			}

			opts := []daemon.Option{daemon.WithLogger(logger), daemon.WithHTTPAddr(cfg.Listen.HTTP)}
			l, err := listen(cfg.Listen)
			if err != nil {
				return err
			}
			if l != nil {
				opts = append(opts, daemon.WithListener(l))
			}

			d, err := daemon.New(reg, opts...)
			if err != nil {
				return fmt.Errorf("building daemon: %w", err)
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				if ctx.Context.Err() == nil {
					logger.Infow("stopping", "Cause", context.Cause(sigCtx))
				}
				d.Stop()
			}()

			return d.Run()
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// listen opens the unix socket listener. A nil listener with no error means the daemon
// serves over HTTP only.
func listen(cfg config.Listen) (net.Listener, error) {
	if cfg.Socket != "" {
		// a stale socket from an earlier run blocks the bind
		if err := os.Remove(cfg.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
		l, err := net.Listen("unix", cfg.Socket)
		if err != nil {
			return nil, fmt.Errorf("listening on %q: %w", cfg.Socket, err)
		}
		return l, nil
	}
	l, err := activation.Listener()
	if errors.Is(err, activation.ErrNotActivated) && cfg.HTTP != "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("socket activation: %w", err)
	}
	return l, nil
}
