package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/inkling/internal/battery"
	"github.com/nextlevelbuilder/inkling/internal/config"
	"github.com/nextlevelbuilder/inkling/internal/providers"
	"github.com/nextlevelbuilder/inkling/internal/schedule"
	"github.com/nextlevelbuilder/inkling/internal/state"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("inkling doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	if info, err := host.Info(); err == nil {
		fmt.Printf("  Host:     %s (%s %s), up %ds\n",
			info.Hostname, info.Platform, info.PlatformVersion, info.Uptime)
	}
	fmt.Println()

	// State directory
	dir, err := state.Dir()
	if err != nil {
		fmt.Printf("  State dir: ERROR: %s\n", err)
		return
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fmt.Printf("  State dir: %s (NOT WRITABLE: %s)\n", dir, err)
	} else {
		os.Remove(probe)
		fmt.Printf("  State dir: %s (OK)\n", dir)
	}

	// Config
	path, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("  Config:   ERROR: %s\n", err)
		return
	}
	fmt.Printf("  Config:   %s", path)
	if _, err := os.Stat(path); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Providers
	fmt.Println()
	fmt.Println("  Providers:")
	chain := providers.BuildChain(cfg.AI.Settings)
	if len(chain) == 0 {
		fmt.Println("    none configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, or OLLAMA_API_KEY)")
	}
	for i, p := range chain {
		role := "fallback"
		if i == 0 {
			role = "primary"
		}
		fmt.Printf("    %-10s %s\n", p.Name(), role)
	}

	// Scheduler expressions
	if len(cfg.Scheduler.Tasks) > 0 {
		fmt.Println()
		fmt.Println("  Scheduled tasks:")
		for _, t := range cfg.Scheduler.Tasks {
			if _, err := schedule.ParseExpr(t.Schedule); err != nil {
				fmt.Printf("    %-20s INVALID: %s\n", t.Name, err)
			} else {
				fmt.Printf("    %-20s %s (OK)\n", t.Name, t.Schedule)
			}
		}
	}

	// Battery
	fmt.Println()
	st, err := battery.NewSysfsSource().Read()
	switch {
	case err != nil:
		fmt.Printf("  Battery:  probe failed: %s\n", err)
	case !st.Present:
		fmt.Println("  Battery:  none detected (desktop mode)")
	default:
		mode := "discharging"
		if st.Charging {
			mode = "charging"
		}
		fmt.Printf("  Battery:  %d%% (%s)\n", st.Level, mode)
	}

	// MCP
	if cfg.MCP.Enabled {
		fmt.Println()
		fmt.Printf("  MCP: %d server(s) configured, tool cap %d\n", len(cfg.MCP.Servers), cfg.MCP.MaxTools)
	}
}
