package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
)

var (
	configFile   = flag.String("config", "", "Configuration file path")
	configFileC  = flag.String("c", "", "Configuration file path (shorthand)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func usage() {
	fmt.Fprintf(os.Stderr, `browservault - secure credential sessions for browser automation

Usage:
  browservault [flags] <command> [command flags]

Commands:
  session    Open an isolated session for a site
  discover   Interactively map a site URL to a vault item
  cache      Inspect or clear the encrypted credential cache
  audit      Read, list, or rotate the audit log
  version    Print version information

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Browservault version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file -> env)
	// 2. Initialize logger
	// 3. Print banner
	path := *configFile
	if path == "" {
		path = *configFileC
	}
	if path == "" {
		path = common.DefaultConfigPath()
	}

	var err error
	config, err = common.LoadFromFile(path)
	if err != nil {
		// Use temporary logger for startup errors
		arbor.NewLogger().Fatal().Str("path", path).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(filepath.Join(common.ConfigDir(), "logs"))
	common.PrintBanner(common.GetVersion())

	command := flag.Arg(0)
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	switch command {
	case "session":
		err = runSession(path, args)
	case "discover":
		err = runDiscover(path, args)
	case "cache":
		err = runCache(args)
	case "audit":
		err = runAudit(args)
	case "version":
		fmt.Printf("Browservault version %s\n", common.GetFullVersion())
	case "":
		usage()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}
