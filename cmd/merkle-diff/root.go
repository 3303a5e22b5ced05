package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"merkle-diff/internal/config"
	"merkle-diff/internal/hash"
	"merkle-diff/internal/orchestrator"
	"merkle-diff/internal/progress"
)

type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	log      *log.Logger
	logLevel string
}

func newCLI(stdout, stderr io.Writer) *cli {
	logger := log.New()
	logger.SetOutput(stderr)
	return &cli{stdout: stdout, stderr: stderr, log: logger}
}

type scanCommand struct {
	cli          *cli
	configPath   string
	snapshot     string
	algorithm    string
	workers      int
	gitignore    bool
	certify      bool
	dryRun       bool
	failOnChange bool
	noColor      bool
	progress     bool
}

// register builds the command line. It has no subcommands: every positional
// argument names a directory, even one called "help" or "verify".
func (c *cli) register() *cobra.Command {
	scan := &scanCommand{cli: c}
	check := &checkCommand{cli: c}
	cmd := &cobra.Command{
		Use:   "merkle-diff <directory>",
		Short: "Detect and authenticate changes to a directory tree",
		Long: "merkle-diff digests every file of a directory into a Merkle tree, compares it\n" +
			"with the snapshot saved by the previous run and reports added, modified and\n" +
			"removed files. The new snapshot then replaces the old one.\n\n" +
			"With --verify it instead re-derives the root of a snapshot, and with --prove\n" +
			"it also prints the inclusion proof of one file.",
		Args:              check.args,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(c.logLevel)
			if err != nil {
				return err
			}
			c.log.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("verify") {
				return check.run()
			}
			return scan.run(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&scan.configPath, "config", "c", "", "Config file path (default <directory>/"+config.FileName+")")
	flags.StringVarP(&scan.snapshot, "snapshot", "s", "", "Snapshot file path (default <directory>/"+config.DefaultSnapshot+")")
	flags.StringVarP(&scan.algorithm, "algorithm", "a", string(hash.Default), "Hash algorithm: "+strings.Join(hash.Algorithms(), ", "))
	flags.IntVarP(&scan.workers, "workers", "w", runtime.NumCPU()*2, "Number of worker goroutines")
	flags.BoolVar(&scan.gitignore, "gitignore", false, "Honor .gitignore files in the directory")
	flags.BoolVar(&scan.certify, "certify", false, "Prove that unchanged files are committed to both roots")
	flags.BoolVar(&scan.dryRun, "dry-run", false, "Compare without saving the new snapshot")
	flags.BoolVar(&scan.failOnChange, "fail-on-change", false, "Exit with status 1 when changes are detected")
	flags.BoolVar(&scan.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&scan.progress, "progress", false, "Show the progress bar even when stderr is not a terminal")
	flags.StringVar(&check.snapshot, "verify", "", "Verify the given snapshot instead of scanning a directory")
	flags.StringVar(&check.path, "prove", "", "With --verify, print the inclusion proof of this file")

	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	return cmd
}

func (s *scanCommand) run(cmd *cobra.Command, args []string) error {
	dir, err := config.ExpandPath(args[0])
	if err != nil {
		return err
	}

	configPath := s.configPath
	if configPath == "" {
		configPath = filepath.Join(dir, config.FileName)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := s.applyFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	alg, err := cfg.HashAlgorithm()
	if err != nil {
		return err
	}

	var progressOut io.Writer
	if s.progress || isTerminal(s.cli.stderr) {
		progressOut = s.cli.stderr
	}

	outcome, err := orchestrator.Run(cmd.Context(), orchestrator.Options{
		Dir:       dir,
		Snapshot:  cfg.Snapshot,
		Algorithm: alg,
		Workers:   cfg.Workers,
		Exclude:   cfg.Exclude,
		Gitignore: cfg.Gitignore,
		Certify:   cfg.Certify,
		DryRun:    s.dryRun,
		Progress:  progressOut,
		Logger:    s.cli.log,
	})
	if err != nil {
		return err
	}

	color := !s.noColor && isTerminal(s.cli.stdout)
	if err := orchestrator.WriteReport(s.cli.stdout, outcome, color); err != nil {
		return err
	}
	if s.failOnChange && outcome.HasChanges() {
		return errChangesDetected
	}
	return nil
}

// applyFlags overrides cfg with every flag set on the command line.
func (s *scanCommand) applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("algorithm") {
		cfg.Algorithm = s.algorithm
	}
	if flags.Changed("workers") || cfg.Workers == 0 {
		cfg.Workers = s.workers
	}
	if flags.Changed("gitignore") {
		cfg.Gitignore = s.gitignore
	}
	if flags.Changed("certify") {
		cfg.Certify = s.certify
	}

	if flags.Changed("snapshot") {
		// Unlike the config value, a path given on the command line is
		// relative to the working directory.
		p, err := config.ExpandPath(s.snapshot)
		if err != nil {
			return err
		}
		if cfg.Snapshot, err = filepath.Abs(p); err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
	} else {
		p, err := config.ExpandPath(cfg.Snapshot)
		if err != nil {
			return err
		}
		cfg.Snapshot = p
	}
	if cfg.Snapshot == "" {
		cfg.Snapshot = config.DefaultSnapshot
	}
	return cfg.Validate()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && progress.IsTerminal(f)
}
