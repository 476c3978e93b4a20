// Package main provides the media-mirror CLI application.
//
// Media Mirror watches a media library and keeps a mirror tree in sync with
// it: large media files are mirrored as symlinks, small metadata files as
// copies, and everything else is ignored.
package main

import (
	"flag"
	"fmt"
	"os"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run(argv []string) error {
	// Define global flags.
	fs := flag.NewFlagSet("media-mirror", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(argv); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("media-mirror %s\n", version)
		return nil
	}

	args := fs.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]

	switch command {
	case "run":
		return runRunCommand(*configPath, args[1:])
	case "scan":
		return runScanCommand(*configPath)
	case "check":
		return runCheckCommand(*configPath)
	case "config":
		return runConfigCommand(*configPath, args[1:])
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// parseRunFlags parses the run command flags.
func parseRunFlags(configPath string, args []string) (*runCommand, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	initialScan := fs.Bool("initial-scan", false, "reconcile existing files before watching")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &runCommand{
		initialScan: *initialScan,
		configPath:  configPath,
	}, nil
}

// runRunCommand runs the run command.
func runRunCommand(configPath string, args []string) error {
	cmd, err := parseRunFlags(configPath, args)
	if err != nil {
		return err
	}
	return cmd.Execute()
}

// runScanCommand runs the scan command.
func runScanCommand(configPath string) error {
	cmd := &scanCommand{
		configPath: configPath,
	}
	return cmd.Execute()
}

// runCheckCommand runs the check command.
func runCheckCommand(configPath string) error {
	cmd := &checkCommand{
		configPath: configPath,
		out:        os.Stdout,
	}
	return cmd.Execute()
}

// runConfigCommand runs the config command.
func runConfigCommand(configPath string, args []string) error {
	cmd := &configCommand{
		configPath: configPath,
	}
	return cmd.Execute(args)
}

// showUsage displays usage information.
func showUsage() error {
	usage := `Media Mirror - mirror a media library as symlinks and copies

Usage:
  media-mirror [flags] <command> [command flags]

Commands:
  run         Watch the source tree and mirror changes until interrupted
  scan        Reconcile every existing source file once and exit
  check       Validate configuration and directories
  config      Configuration management (show, path)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Run Command Flags:
  -initial-scan   Reconcile existing files before watching

Environment:
  SOURCE_DIR, DEST_DIR, LOG_PATH
  LINK_FILE_EXTENSIONS, COPY_FILE_EXTENSIONS
  COMPATIBILITY_MODE, POLLING_INTERVAL
  MEDIA_MIRROR_DB, MEDIA_MIRROR_LOG_LEVEL

Examples:
  # Watch with OS notifications
  SOURCE_DIR=/media/src DEST_DIR=/media/dst LOG_PATH=./mirror.log \
  LINK_FILE_EXTENSIONS=.mkv,.mp4 COPY_FILE_EXTENSIONS=.nfo,.jpg \
  media-mirror run

  # Catch up with existing files, then watch
  media-mirror -config ./media-mirror.yaml run -initial-scan

  # Watch a network share by polling every 30 seconds
  COMPATIBILITY_MODE=true POLLING_INTERVAL=30 media-mirror run

  # Verify the setup without touching the filesystem
  media-mirror check

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
