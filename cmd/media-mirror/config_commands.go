package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/media-mirror/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	configPath string
}

// Execute runs the config command with given arguments.
func (c *configCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "show":
		return c.runShow(subargs)
	case "path":
		return c.runPath()
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown config subcommand: %s", subcommand)
	}
}

// runShow displays the effective configuration.
func (c *configCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format (yaml, json)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader(c.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return writeConfig(os.Stdout, cfg, *format, configSource(loader))
}

// writeConfig renders cfg in the given format.
func writeConfig(out io.Writer, cfg *config.Config, format, source string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(out, "# Effective configuration")
		fmt.Fprintln(out, "# Source:", source)
		fmt.Fprintln(out)
		fmt.Fprint(out, string(data))
		return nil

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// runPath shows the configuration file search paths.
func (c *configCommand) runPath() error {
	paths := []string{"./media-mirror.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "media-mirror", "config.yaml"))
	}

	fmt.Println("Configuration file search paths (in order of precedence):")
	fmt.Println()

	if c.configPath != "" {
		fmt.Printf("  -config %s\n", c.configPath)
	}
	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Printf("  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Println()
	fmt.Println("Active configuration:", configSource(config.NewLoader(c.configPath)))
	return nil
}

// configSource describes where loader reads its configuration from.
func configSource(loader config.Loader) string {
	if p := loader.Path(); p != "" {
		return p
	}
	return "defaults and environment (no config file found)"
}

// showHelp displays help for config command.
func (c *configCommand) showHelp() error {
	help := `Config - Configuration management

Usage:
  media-mirror config <subcommand> [flags]

Subcommands:
  show      Display the effective configuration (file + environment)
  path      Show configuration file paths

Show Flags:
  -format   Output format (yaml, json) (default: yaml)

Examples:
  # Show current configuration
  media-mirror config show

  # Show configuration in JSON format
  media-mirror config show -format json

  # Show configuration file paths
  media-mirror config path
`
	fmt.Print(help)
	return nil
}
