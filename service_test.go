package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kardianos/service"
)

func TestServiceConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(t.TempDir(), "srdash.yaml")

	cfg, err := serviceConfig(&rootOptions{envFile: ".env", configFile: abs})
	if err != nil {
		t.Fatalf("serviceConfig() error = %v", err)
	}
	if cfg.Name != "srdash" || cfg.WorkingDirectory != wd {
		t.Errorf("Name = %q, WorkingDirectory = %q", cfg.Name, cfg.WorkingDirectory)
	}
	want := []string{"service", "run", "--env", filepath.Join(wd, ".env"), "--config", abs}
	if !slices.Equal(cfg.Arguments, want) {
		t.Errorf("Arguments = %v, want %v", cfg.Arguments, want)
	}
}

func TestServiceConfigWithoutFiles(t *testing.T) {
	cfg, err := serviceConfig(&rootOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Arguments, []string{"service", "run"}) {
		t.Errorf("Arguments = %v", cfg.Arguments)
	}
}

func TestServiceSubcommands(t *testing.T) {
	cmd := newServiceCmd(&rootOptions{})
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"install", "uninstall", "start", "stop", "restart", "status", "run"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing subcommand %q in %v", want, names)
		}
	}
}

func TestStatusText(t *testing.T) {
	tests := map[service.Status]string{
		service.StatusRunning: "running",
		service.StatusStopped: "stopped",
		service.StatusUnknown: "in an unknown state",
	}
	for status, want := range tests {
		if got := statusText(status); got != want {
			t.Errorf("statusText(%v) = %q, want %q", status, got, want)
		}
	}
}

func TestProgramStopBeforeStart(t *testing.T) {
	p := &program{opts: &rootOptions{}}
	if err := p.Stop(nil); err != nil {
		t.Errorf("Stop() before Start = %v", err)
	}
}
