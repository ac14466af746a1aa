package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/guseggert/nmproxy/config"
	"github.com/guseggert/nmproxy/frame"
	"github.com/guseggert/nmproxy/internal/logging"
	"github.com/guseggert/nmproxy/internal/stdio"
	"github.com/guseggert/nmproxy/session"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "nmproxy",
		Usage: "forwards a native messaging host session to nmproxyd",
		// every argument belongs to the target, including ones that look like flags
		SkipFlagParsing: true,
		HideHelp:        true,
		HideHelpCommand: true,
		Action: func(ctx *cli.Context) error {
			cfg := config.ClientFromEnv(os.Getenv, os.Args[0])

			logger, err := logging.NewClient(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := session.Dial(context.Background(), cfg.Addr)
			if err != nil {
				return err
			}
			logger.Debugw("connected", "Addr", cfg.Addr, "Target", cfg.Target)

			client := &session.Client{
				Log:    logger,
				Stdin:  stdio.Stdin(),
				Stdout: os.Stdout,
				Stderr: os.Stderr,
			}
			if err := client.Run(conn, frame.Handshake{Target: cfg.Target, Args: ctx.Args().Slice()}); err != nil {
				return fmt.Errorf("running session: %w", err)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
