package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omegagate/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("omegagate doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
		return
	}
	fmt.Println(" (OK)")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checkProvider(name, cfg.Providers[name])
	}
	if len(names) == 0 {
		fmt.Println("    (none configured)")
	}
	fmt.Printf("    %-12s %v\n", "routing.fast:", cfg.Routing.FastProvider != "")
	fmt.Printf("    %-12s %v\n", "routing.complex:", cfg.Routing.ComplexProvider != "")

	fmt.Println()
	fmt.Println("  Channels:")
	chNames := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		chNames = append(chNames, name)
	}
	sort.Strings(chNames)
	for _, name := range chNames {
		cc := cfg.Channels[name]
		status := "disabled"
		if cc.Enabled && cc.ResolveToken() != "" {
			status = "enabled"
		} else if cc.Enabled {
			status = "enabled (missing credentials)"
		}
		fmt.Printf("    %-12s %s\n", name+":", status)
	}
	if len(chNames) == 0 {
		fmt.Println("    (none configured)")
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("git")
	checkBinary("docker")

	fmt.Println()
	ws := config.ExpandHome(cfg.Sandbox.Workspace)
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND — created on first gateway run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	if !cfg.HasAnyProvider() {
		fmt.Println("  WARNING: no provider has a resolvable API key.")
	}
	fmt.Println("Doctor check complete.")
}

func checkProvider(name string, pc config.ProviderConfig) {
	key := pc.ResolveAPIKey()
	switch {
	case pc.Kind == "cli":
		fmt.Printf("    %-12s cli (%s)\n", name+":", pc.Command)
	case key != "" && len(key) > 8:
		masked := key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
		fmt.Printf("    %-12s %s (%s)\n", name+":", masked, pc.Kind)
	case key != "":
		fmt.Printf("    %-12s **** (%s)\n", name+":", pc.Kind)
	default:
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
