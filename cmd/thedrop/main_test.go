package main

import (
	"context"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	var stdout, stderr strings.Builder

	err := run(context.Background(), &stdout, &stderr, []string{"version"})
	if err != nil {
		t.Fatalf("run(version) error: %v", err)
	}
	if stdout.Len() == 0 {
		t.Error("version printed nothing")
	}
}

func TestRunNoCommand(t *testing.T) {
	var stdout, stderr strings.Builder

	err := run(context.Background(), &stdout, &stderr, nil)
	if err == nil {
		t.Fatal("run() with no command succeeded")
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Error("usage not printed to stderr")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr strings.Builder

	err := run(context.Background(), &stdout, &stderr, []string{"explode"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("run(explode) error = %v", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var stdout, stderr strings.Builder

	err := run(context.Background(), &stdout, &stderr, []string{"-frobnicate", "send"})
	if err == nil || !strings.Contains(err.Error(), "unknown argument") {
		t.Errorf("run(-frobnicate) error = %v", err)
	}
}

func TestRunInvalidDays(t *testing.T) {
	var stdout, stderr strings.Builder

	for _, days := range []string{"zero", "-3", "0"} {
		err := run(context.Background(), &stdout, &stderr, []string{"send", "-days", days})
		if err == nil || !strings.Contains(err.Error(), "invalid -days") {
			t.Errorf("run(-days %s) error = %v", days, err)
		}
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr strings.Builder

	if err := run(context.Background(), &stdout, &stderr, []string{"-h"}); err != nil {
		t.Fatalf("run(-h) error: %v", err)
	}
	for _, want := range []string{"send", "preview", "version", "-config", "-days"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestRunSendWithoutConfig(t *testing.T) {
	var stdout, stderr strings.Builder

	// Point -config at a path that cannot exist so the search fails
	// regardless of the host's real config files.
	err := run(context.Background(), &stdout, &stderr, []string{"send", "-config", t.TempDir() + "/none.yaml"})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("run(send) error = %v, want missing-config failure", err)
	}
}
