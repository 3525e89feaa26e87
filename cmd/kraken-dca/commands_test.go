package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const bitcoinWeekly = `{
  "name": "bitcoin-weekly",
  "dca": {"pair": "XBTUSD", "amount": 50, "currency": "USD", "low_balance_threshold": 100},
  "schedule": {"cron": "0 9 * * 1", "timezone": "UTC"}
}`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "bitcoin-weekly.json", bitcoinWeekly)
	writeConfig(t, dir, "broken.yaml", "name: broken\n")

	out, err := execute(t, "list", "--dir", dir)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if !strings.Contains(out, "bitcoin-weekly") || !strings.Contains(out, "XBTUSD") || !strings.Contains(out, "50.00 USD") {
		t.Errorf("expected valid strategy row, got:\n%s", out)
	}
	if !strings.Contains(out, "broken.yaml") || !strings.Contains(out, "无效") {
		t.Errorf("expected invalid strategy row, got:\n%s", out)
	}
}

func TestValidateCommand_Offline(t *testing.T) {
	dir := t.TempDir()
	good := writeConfig(t, dir, "bitcoin-weekly.json", bitcoinWeekly)
	bad := writeConfig(t, dir, "bad.json", `{"name": "bad", "dca": {"pair": "XBTUSD"}}`)

	out, err := execute(t, "validate", "--offline", good)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !strings.Contains(out, "bitcoin-weekly") {
		t.Errorf("expected strategy summary, got %q", out)
	}

	if _, err := execute(t, "validate", "--offline", good, bad); err == nil {
		t.Fatalf("expected error for invalid strategy")
	} else if !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("expected failing file named in error, got %v", err)
	}
}

func TestGenerateServiceCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "bitcoin-weekly.json", bitcoinWeekly)
	output := filepath.Join(dir, "kraken-dca.service")

	_, err := execute(t, "generate-service",
		"--format", "systemd",
		"--executable", "/usr/local/bin/kraken-dca",
		"--output", output,
		cfg,
	)
	if err != nil {
		t.Fatalf("generate-service returned error: %v", err)
	}

	content, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read generated unit: %v", err)
	}
	if !strings.Contains(string(content), "ExecStart=/usr/local/bin/kraken-dca run "+cfg) {
		t.Errorf("unexpected unit:\n%s", content)
	}
}

func TestGenerateServiceCommand_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.json", `{"name": "bad"}`)

	if _, err := execute(t, "generate-service", "--output", "-", bad); err == nil {
		t.Fatalf("expected error for invalid config")
	}
}
