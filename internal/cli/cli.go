// Package cli parses the flags of spec.md §6 and dispatches to the driver.
// Grounded on calvinalkan-agent-task's internal/cli/run.go shape: a fresh
// pflag.FlagSet per invocation, parse-then-dispatch, exit codes returned
// rather than os.Exit'd directly so the entry point stays testable.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"cyclicbackup/internal/config"
	"cyclicbackup/internal/driver"
	"cyclicbackup/internal/logging"
	"cyclicbackup/internal/report"
	"cyclicbackup/internal/utils"
)

// Exit codes per spec.md §6: "0 on completion (even if error buffer is
// non-empty); 2 on argument error or fatal exception."
const (
	ExitOK         = 0
	ExitUsageError = 2
)

// Run parses args (excluding argv[0]) and executes one backup run,
// returning the process exit code spec.md §6 specifies.
func Run(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	flags := flag.NewFlagSet("backup", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	configPath := flags.StringP("config", "c", "", "merge YAML config from path")
	dump := flags.BoolP("dump", "d", false, "dump effective config to standard error")
	help := flags.BoolP("help", "h", false, "print usage")
	key := flags.StringP("key", "k", "", "override encryption passphrase")
	logPath := flags.StringP("log", "l", "", "override log path (daily log files are written to its directory)")
	maxSize := flags.StringP("size", "s", "", "override max_target_size")
	target := flags.StringP("target", "t", "", "override target-archive path template")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitUsageError
	}

	if *help {
		printUsage(stdout)
		return ExitUsageError
	}

	cfg, err := config.Default()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitUsageError
	}

	path := *configPath
	if path == "" {
		// No -c given: fall back to a config file beside the executable
		// rather than relying on the working directory, which is often
		// unpredictable when this runs unattended from cron or a service
		// manager.
		if exeDir, err := utils.ExeDir(); err == nil {
			if candidate := filepath.Join(exeDir, "cyclicbackup.yaml"); fileExists(candidate) {
				path = candidate
			}
		}
	}

	if path != "" {
		cfg, err = config.LoadFile(cfg, path)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return ExitUsageError
		}
	}

	cfg = config.ApplyOverrides(cfg, config.Overrides{
		Key:           *key,
		Log:           *logPath,
		MaxTargetSize: *maxSize,
		Target:        *target,
	})

	if *dump {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return ExitUsageError
		}
		fmt.Fprint(stderr, out)
	}

	log, err := logging.New(".", logging.LogSettings{NoLogs: cfg.Log == "", LogDir: filepath.Dir(cfg.Log)})
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitUsageError
	}

	rep, err := driver.RunWith(ctx, cfg, driver.DefaultChildProcesses(), log, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitUsageError
	}

	printReport(stdout, rep)
	return ExitOK
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: backup [-c path] [-d] [-h] [-k passphrase] [-l path] [-s size] [-t template]")
}

func printReport(out io.Writer, rep report.Report) {
	c := rep.Counters
	fmt.Fprintf(out, "backed_up=%d incremental=%d cyclic=%d too_recent=%d same_old=%d excluded=%d permissions=%d removed=%d\n",
		c.BackedUp, c.Incremental, c.Cyclic, c.TooRecent, c.SameOld, c.Excluded, c.Permissions, c.Removed)
	for _, e := range rep.Errors {
		fmt.Fprintln(out, "error:", e)
	}
	for _, m := range rep.Messages {
		fmt.Fprintln(out, "message:", m)
	}
}
