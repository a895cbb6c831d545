package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"tg_roster_bot/internal/config"
)

var header = []interface{}{
	ColFiscalCode, ColMemberCode, ColFirstName, ColLastName, ColSex, ColBirthDate,
	ColBranch, ColUnit, ColEmail,
}

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	all := append([][]interface{}{header}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestXLSXSourceDownloadsWithBasicAuth(t *testing.T) {
	data := workbook(t,
		[]interface{}{"RSSMRA80A41A509X", "AV100", "Maria", "Rossi", "F", "1980-01-01", "Adulti", "G", "maria@example.org"},
		[]interface{}{"", "", "", "", "", "", "", "", ""},
		[]interface{}{"BNCLGU85A01A509Y", "AV200", "Luigi", "Bianchi", "M", "1985-01-01", "Branca E/G"},
	)

	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	src := NewXLSXSource(config.ImportConfig{
		Source:   srv.URL + "/Iscritti.xlsx",
		Username: "reader",
		Password: "secret",
	}, nil)

	rows, err := src.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if gotUser != "reader" || gotPass != "secret" {
		t.Fatalf("expected basic auth, got %q/%q", gotUser, gotPass)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank row to be skipped, got %d rows", len(rows))
	}
	if rows[0].FiscalCode != "RSSMRA80A41A509X" || rows[0].Email != "maria@example.org" || rows[0].Unit != "G" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].LastName != "Bianchi" || rows[1].Email != "" {
		t.Fatalf("expected short row to leave trailing columns empty, got %+v", rows[1])
	}
}

func TestXLSXSourceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewXLSXSource(config.ImportConfig{Source: srv.URL + "/x.xlsx"}, nil)
	if _, err := src.Rows(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestXLSXSourceReadsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	data := workbook(t, []interface{}{"VRDGNN90A01A509Z", "AV300", "Giovanni", "Verdi", "M", "1990-01-01", "Branca L/C"})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rows, err := NewXLSXSource(config.ImportConfig{Source: path}, nil).Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].MemberCode != "AV300" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestParseTableRequiresHeaderColumns(t *testing.T) {
	if _, err := parseTable(nil); err == nil {
		t.Fatalf("expected error for empty sheet")
	}

	_, err := parseTable([][]string{{ColFiscalCode, ColFirstName}})
	if err == nil || !strings.Contains(err.Error(), ColMemberCode) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestYAMLSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `
- CodiceFiscale: RSSMRA80A41A509X
  CodiceSocio: AV100
  Nome: Maria
  Cognome: Rossi
  Sesso: F
  DataNascita: "1980-01-01"
  Branca: Adulti
  Cap: "83100"
  CUN: G
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src, err := NewSource(config.ImportConfig{Source: path}, nil)
	if err != nil {
		t.Fatalf("NewSource returned error: %v", err)
	}
	if _, ok := src.(YAMLSource); !ok {
		t.Fatalf("expected YAMLSource for .yaml path, got %T", src)
	}

	rows, err := src.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].PostalCode != "83100" || rows[0].Unit != "G" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		cfg  config.ImportConfig
		want string
	}{
		{config.ImportConfig{Source: "roster.xlsx"}, FormatXLSX},
		{config.ImportConfig{Source: "seed.YML"}, FormatYAML},
		{config.ImportConfig{Source: "https://host/sites/x/seed.yaml?web=1"}, FormatYAML},
		{config.ImportConfig{Source: "https://host/download?id=1"}, FormatXLSX},
		{config.ImportConfig{Source: "roster.bin", Format: "YAML"}, FormatYAML},
		{config.ImportConfig{Source: "roster.bin", Format: "yml"}, FormatYAML},
	}

	for _, tt := range tests {
		if got := detectFormat(tt.cfg); got != tt.want {
			t.Fatalf("detectFormat(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}

	if _, err := NewSource(config.ImportConfig{Source: "x", Format: "csv"}, nil); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := NewSource(config.ImportConfig{}, nil); err == nil {
		t.Fatalf("expected error without source")
	}
}
