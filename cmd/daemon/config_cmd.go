// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/mediaops/internal/config"
)

const redacted = "***"

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mediaops config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  mediaops config dump [--file|-f config.yaml]")
}

// resolveDefaultConfigPath returns $MEDIAOPS_DATA/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv("MEDIAOPS_DATA"))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func configFlags(name string, args []string, stderr io.Writer) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	file = strings.TrimSpace(file)
	if file == "" {
		file = resolveDefaultConfigPath()
	}
	return file, true
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	path, ok := configFlags("mediaops config validate", args, stderr)
	if !ok {
		return 2
	}
	if path == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no config.yaml found in $MEDIAOPS_DATA)")
		return 2
	}
	if _, err := config.NewLoader(path).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", path)
	return 0
}

// runConfigDump prints the effective configuration (defaults, file, env)
// with credentials redacted.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	path, ok := configFlags("mediaops config dump", args, stderr)
	if !ok {
		return 2
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if cfg.Storage.Mirror.SecretKey != "" {
		cfg.Storage.Mirror.SecretKey = redacted
	}
	if cfg.Storage.Mirror.AccessKey != "" {
		cfg.Storage.Mirror.AccessKey = redacted
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(stderr, "Error encoding config: %v\n", err)
		return 1
	}
	_ = enc.Close()
	return 0
}
