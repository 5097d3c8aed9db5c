package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nextlevelbuilder/inkling/internal/config"
	"github.com/nextlevelbuilder/inkling/internal/controller"
	"github.com/nextlevelbuilder/inkling/internal/frontend"
	"github.com/nextlevelbuilder/inkling/internal/state"
)

// runCompanion is the default command: background services plus the
// terminal front-end in the foreground.
func runCompanion(parent context.Context) error {
	cfg, dir, err := loadEverything()
	if err != nil {
		return err
	}

	c, err := controller.New(cfg, dir, controller.WithHTTPAddr(httpAddr))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)
	defer c.Shutdown()

	fmt.Printf("%s is awake. Chat away, or try /help.\n", cfg.Name)
	term := frontend.NewTerminal(cfg.Name, c.Registry(), c.Chat,
		frontend.WithHistoryFile(filepath.Join(dir, "chat_history")))
	return term.Run(ctx)
}

func loadEverything() (*config.Config, string, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	dir, err := state.Dir()
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}
