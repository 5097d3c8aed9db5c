package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/inkling/internal/controller"
)

// chatCmd sends a single message and prints the reply, for scripting and
// quick checks without the REPL.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := loadEverything()
			if err != nil {
				return err
			}
			// One-shot mode: no heartbeat, no front-ends.
			cfg.Heartbeat.Enabled = false

			c, err := controller.New(cfg, dir)
			if err != nil {
				return err
			}
			c.Start(cmd.Context())
			defer c.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			reply, err := c.Chat(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			cmd.Println(reply)
			return nil
		},
	}
}
