package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "quietq ") {
		t.Fatalf("out=%q", out)
	}
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("transport: {kind: console}\nprompts: {timezone: UTC}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("digest: {enabled: true, spec: \"not cron\"}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "check-config", "--config", good)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "transport=console") || !strings.Contains(out, "timezone=UTC") {
		t.Fatalf("out=%q", out)
	}

	if _, err := execute(t, "check-config", "-c", bad); err == nil || !strings.Contains(err.Error(), "digest.spec") {
		t.Fatalf("err=%v", err)
	}
	if _, err := execute(t, "check-config", "-c", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
