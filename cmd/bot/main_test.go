package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tg_roster_bot/internal/config"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.KeyAppEnv, config.EnvProduction)
	t.Setenv(config.KeyTelegramToken, "123456:secret-token")
	t.Setenv(config.KeyStoreBackend, config.BackendMemory)
	t.Setenv(config.KeyTransport, config.TransportPolling)
	t.Setenv("MAIL_HOST", "")
	t.Setenv("IMPORT_SOURCE", "")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "import", "config"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
	if root.RunE == nil {
		t.Fatalf("expected root command to default to serve")
	}
}

func TestConfigCommandPrintsRedactedConfig(t *testing.T) {
	setBaseEnv(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config"})

	if err := root.Execute(); err != nil {
		t.Fatalf("config command returned error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "configuration check: ok") {
		t.Fatalf("expected ok banner, got %q", got)
	}
	if !strings.Contains(got, "store_backend: memory") {
		t.Fatalf("expected store backend, got %q", got)
	}
	if strings.Contains(got, "secret-token") {
		t.Fatalf("token leaked: %q", got)
	}
}

func TestConfigCommandFailsWithoutToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv(config.KeyTelegramToken, "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without telegram token")
	}
}

func TestImportCommand(t *testing.T) {
	setBaseEnv(t)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `
- CodiceFiscale: RSSMRA80A41A509X
  CodiceSocio: AV100
  Nome: Maria
  Cognome: Rossi
  Sesso: F
  DataNascita: "1980-01-01"
  Branca: Adulti
- CodiceFiscale: ""
  CodiceSocio: AV101
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"import", "--source", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("import command returned error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "inserted 1, updated 0, rejected 1" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestImportCommandRequiresSource(t *testing.T) {
	setBaseEnv(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"import"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without import source")
	}
}
