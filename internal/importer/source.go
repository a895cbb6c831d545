package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/logging"
)

// Source formats.
const (
	FormatXLSX = "xlsx"
	FormatYAML = "yaml"
)

const (
	downloadTimeout  = 60 * time.Second
	downloadRetryMax = 3
)

// Source yields raw roster rows.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
}

// NewSource picks the source for cfg. The format comes from IMPORT_FORMAT or,
// when unset, from the location's extension.
func NewSource(cfg config.ImportConfig, logger *logrus.Entry) (Source, error) {
	if !cfg.Enabled() {
		return nil, errors.New("import source is required")
	}

	switch format := detectFormat(cfg); format {
	case FormatXLSX:
		return NewXLSXSource(cfg, logger), nil
	case FormatYAML:
		return YAMLSource{Path: cfg.Source}, nil
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

func detectFormat(cfg config.ImportConfig) string {
	if f := strings.ToLower(strings.TrimSpace(cfg.Format)); f != "" {
		if f == "yml" {
			return FormatYAML
		}
		return f
	}

	location := cfg.Source
	if isRemote(location) {
		if i := strings.IndexAny(location, "?#"); i >= 0 {
			location = location[:i]
		}
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatXLSX
	}
}

// XLSXSource reads the first sheet (or Sheet) of a workbook stored on disk or
// served over HTTP(S) with optional basic auth.
type XLSXSource struct {
	Location string
	Username string
	Password string
	Sheet    string

	client *retryablehttp.Client
}

// NewXLSXSource builds a workbook source with a retrying HTTP client.
func NewXLSXSource(cfg config.ImportConfig, logger *logrus.Entry) *XLSXSource {
	if logger == nil {
		logger = logging.Logger()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = downloadRetryMax
	client.HTTPClient.Timeout = downloadTimeout
	client.Logger = retryLogger{entry: logger.WithField("component", "import_download")}

	return &XLSXSource{
		Location: strings.TrimSpace(cfg.Source),
		Username: cfg.Username,
		Password: cfg.Password,
		Sheet:    strings.TrimSpace(cfg.Sheet),
		client:   client,
	}
}

// Rows opens the workbook and maps every non-empty row under the header.
func (s *XLSXSource) Rows(ctx context.Context) ([]Row, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s == nil || s.Location == "" {
		return nil, errors.New("xlsx source is not initialized")
	}

	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("open workbook: no sheets")
		}
		sheet = sheets[0]
	}

	table, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	return parseTable(table)
}

func (s *XLSXSource) read(ctx context.Context) ([]byte, error) {
	if !isRemote(s.Location) {
		data, err := os.ReadFile(s.Location)
		if err != nil {
			return nil, fmt.Errorf("read workbook: %w", err)
		}
		return data, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download workbook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download workbook: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download workbook: %w", err)
	}
	return data, nil
}

// parseTable maps rows under the header row. Blank rows are skipped.
func parseTable(table [][]string) ([]Row, error) {
	if len(table) == 0 {
		return nil, errors.New("read sheet: header row is missing")
	}

	index := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		index[strings.TrimSpace(h)] = i
	}

	missing := make([]string, 0)
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("read sheet: missing column(s): %s", strings.Join(missing, ", "))
	}

	rows := make([]Row, 0, len(table)-1)
	for _, cells := range table[1:] {
		if blank(cells) {
			continue
		}

		record := make(map[string]string, len(index))
		for col, i := range index {
			if i < len(cells) {
				record[col] = cells[i]
			}
		}
		rows = append(rows, rowFromRecord(record))
	}
	return rows, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// YAMLSource reads a list of rows keyed by the spreadsheet column names,
// useful for seeding development databases.
type YAMLSource struct {
	Path string
}

// Rows decodes the file at Path.
func (s YAMLSource) Rows(ctx context.Context) ([]Row, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read roster seed: %w", err)
	}

	var rows []Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode roster seed: %w", err)
	}
	return rows, nil
}

// retryLogger adapts logrus to retryablehttp.LeveledLogger.
type retryLogger struct {
	entry *logrus.Entry
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }

func (l retryLogger) with(kv []interface{}) *logrus.Entry {
	fields := logging.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}
