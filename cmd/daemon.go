package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/daemon"
)

var debug bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the warden daemon",
	Long:  `Start, stop, and check the status of the warden daemon process.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the warden daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating data directory: %v\n", err)
			os.Exit(1)
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.Storage.DataDir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()

		var out io.Writer = logFile
		if debug {
			out = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}, logFile)
		}
		level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
		if err != nil {
			level = zerolog.InfoLevel
		}
		log := zerolog.New(out).Level(level).With().Timestamp().Logger()

		d := daemon.New(cfg, log)
		if err := d.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the warden daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pidFile := filepath.Join(cfg.Storage.DataDir, "warden.pid")

		pid, err := daemon.ReadPID(pidFile)
		if os.IsNotExist(err) {
			fmt.Println("Daemon not running")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding process: %v\n", err)
			os.Exit(1)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping daemon: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Daemon stop signal sent")
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pidFile := filepath.Join(cfg.Storage.DataDir, "warden.pid")

		running, pid, err := daemon.CheckExistingDaemon(pidFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !running {
			fmt.Println("Daemon: not running")
			return
		}
		fmt.Printf("Daemon: running (PID %d)\n", pid)
	},
}

func init() {
	daemonStartCmd.Flags().BoolVar(&debug, "debug", false, "log to stdout as well as the log file")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}
