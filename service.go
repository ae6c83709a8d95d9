package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/kardianos/service"

	"postforge/api"
	"postforge/core"
	"postforge/shutdown"
)

const serviceName = "postforge"

// serviceCommands are the control actions accepted as the first argument.
var serviceCommands = map[string]bool{
	"install":   true,
	"uninstall": true,
	"start":     true,
	"stop":      true,
	"restart":   true,
}

// program adapts serve to the service manager's Start/Stop lifecycle.
type program struct {
	manager  *shutdown.Manager
	timeout  time.Duration
	done     chan int
	stopping atomic.Bool
}

// Start bootstraps synchronously so a bad configuration fails the service
// start, then serves in the background.
func (p *program) Start(s service.Service) error {
	cfg, logger, code := bootstrap(false)
	if code != core.ExitCodeSuccess {
		return fmt.Errorf("startup failed with exit code %d", code)
	}

	// The service manager owns signals; Stop triggers shutdown instead.
	p.manager = shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	p.timeout = cfg.ShutdownTimeout
	p.done = make(chan int, 1)
	go func() {
		code := serve(cfg, logger, p.manager)
		if !p.stopping.Load() {
			// Exited without Stop; let the service manager's restart policy act.
			os.Exit(code)
		}
		p.done <- code
	}()
	return nil
}

// Stop triggers shutdown and waits for serve to return.
func (p *program) Stop(s service.Service) error {
	if p.manager == nil {
		return nil
	}
	p.stopping.Store(true)
	p.manager.Trigger()
	select {
	case code := <-p.done:
		if code != core.ExitCodeSuccess {
			return fmt.Errorf("service exited with code %d", code)
		}
		return nil
	case <-time.After(p.timeout + 5*time.Second):
		return errors.New("timeout waiting for service to stop")
	}
}

// ServiceConfig describes the installed service. The working directory is
// the executable's so .env and relative paths resolve as in the foreground.
func ServiceConfig() *service.Config {
	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: "Postforge",
		Description: "Generates social media posts with captions, hashtags and composed images.",
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
	if exe, err := os.Executable(); err == nil {
		cfg.WorkingDirectory = filepath.Dir(exe)
	}
	return cfg
}

func newService() (service.Service, error) {
	s, err := service.New(&program{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService runs under the platform service manager when the process
// was started by one. It returns false when running interactively.
func RunAsService() (bool, error) {
	if service.Interactive() {
		return false, nil
	}
	s, err := newService()
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// HandleServiceCommand handles service management arguments and reports
// whether args held one.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	command := args[1]
	switch {
	case command == "help" || command == "-h" || command == "--help" || command == "-help":
		PrintServiceUsage(os.Stdout)
		return true
	case command == "version" || command == "--version":
		fmt.Println(core.VersionInfo())
		return true
	case command == "hash-key":
		if err := printKeyHash(args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return true
	case command == "remove":
		command = "uninstall"
	case command != "status" && !serviceCommands[command]:
		return false
	}

	s, err := newService()
	if err == nil {
		err = controlService(s, command, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	return true
}

func controlService(s service.Service, command string, out io.Writer) error {
	if command == "status" {
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Fprintln(out, statusText(status))
		return nil
	}
	if err := service.Control(s, command); err != nil {
		return err
	}
	fmt.Fprintf(out, "Service %s: ok\n", command)
	return nil
}

// printKeyHash prints the bcrypt hash for API_KEY_HASH.
func printKeyHash(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: postforge hash-key <key>")
	}
	hash, err := api.HashAPIKey(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "API_KEY_HASH=%s\n", hash)
	return nil
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}

// PrintServiceUsage prints the service management commands.
func PrintServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "postforge service management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: postforge <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install postforge as a system service")
	fmt.Fprintln(w, "  uninstall  Remove the system service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the service")
	fmt.Fprintln(w, "  stop       Stop the service")
	fmt.Fprintln(w, "  restart    Restart the service")
	fmt.Fprintln(w, "  status     Show the current service status")
	fmt.Fprintln(w, "  version    Print build information")
	fmt.Fprintln(w, "  hash-key   Print the API_KEY_HASH value for a key")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run without arguments to start the HTTP service in the foreground.")
}
