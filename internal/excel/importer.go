package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/wordforge/pkg/models"
)

// ItemAdder is where imported words go. Every word is added through the
// trainer so that it gets its first reminder.
type ItemAdder interface {
	AddItem(ctx context.Context, term, definition string) (*models.Word, error)
	ListItems(ctx context.Context) ([]models.Word, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath         string // Path to the Excel or CSV file
	SheetName        string // Sheet to import; empty means the first sheet
	WordColumn       string // Column with the word
	DefinitionColumn string // Column with the definition
	StartRow         int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		WordColumn:       "A",
		DefinitionColumn: "B",
		StartRow:         2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

type row struct {
	num        int
	term       string
	definition string
}

// ImportWords imports words from an Excel or CSV file
func ImportWords(ctx context.Context, config ImportConfig, adder ItemAdder) (*ImportResult, error) {
	if config.StartRow < 1 {
		config.StartRow = 1
	}

	var (
		rows []row
		err  error
	)
	switch strings.ToLower(filepath.Ext(config.FilePath)) {
	case ".csv":
		rows, err = readCSV(config)
	case ".xlsx", ".xlsm":
		rows, err = readExcel(config)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(config.FilePath))
	}
	if err != nil {
		return nil, err
	}

	existing, err := adder.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing words: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, w := range existing {
		known[strings.ToLower(w.Term)] = true
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalProcessed++

		if r.term == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: word cannot be empty", r.num))
			continue
		}
		if known[strings.ToLower(r.term)] {
			result.Skipped++
			continue
		}

		word, err := adder.AddItem(ctx, r.term, r.definition)
		if word == nil {
			return result, fmt.Errorf("row %d: %w", r.num, err)
		}
		// The word is stored; only its reminder failed. The daily catch-up still covers it.
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", r.num, err))
		}
		known[strings.ToLower(r.term)] = true
		result.Created++
	}
	return result, nil
}

// readExcel reads word rows from an Excel workbook
func readExcel(config ImportConfig) ([]row, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}

	wordIdx, err := columnIndex(config.WordColumn)
	if err != nil {
		return nil, err
	}
	defIdx, err := columnIndex(config.DefinitionColumn)
	if err != nil {
		return nil, err
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	var rows []row
	for i, cols := range cells {
		// Skip header rows
		if i < config.StartRow-1 || isBlank(cols) {
			continue
		}
		rows = append(rows, row{
			num:        i + 1,
			term:       cleanWord(cell(cols, wordIdx)),
			definition: strings.TrimSpace(cell(cols, defIdx)),
		})
	}
	return rows, nil
}

// readCSV reads word rows from a CSV file. Besides plain "word,definition"
// it accepts "word,[transcription],definition" and skips section header
// lines such as "Verbs,,".
func readCSV(config ImportConfig) ([]row, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows []row
	rowNum := 0
	for {
		cols, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}

		rowNum++
		if rowNum < config.StartRow || isBlank(cols) || isSectionHeader(cols) {
			continue
		}

		definition := cell(cols, 1)
		if strings.HasPrefix(strings.TrimSpace(definition), "[") && len(cols) > 2 {
			definition = cell(cols, 2)
		}
		rows = append(rows, row{
			num:        rowNum,
			term:       cleanWord(cell(cols, 0)),
			definition: strings.TrimSpace(definition),
		})
	}
	return rows, nil
}

func columnIndex(column string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(column))
	if err != nil {
		return 0, fmt.Errorf("invalid column %q: %w", column, err)
	}
	return n - 1, nil
}

func cell(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// isSectionHeader matches rows like "Movement,," that title a block of words.
// "word," is a word without a definition, not a header.
func isSectionHeader(cols []string) bool {
	if len(cols) < 3 || strings.TrimSpace(cols[0]) == "" {
		return false
	}
	for _, c := range cols[1:] {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cleanWord drops trailing notes in parentheses, e.g. "go (went, gone)"
func cleanWord(word string) string {
	word = strings.Trim(strings.TrimSpace(word), "\"")
	if i := strings.Index(word, "("); i > 0 {
		return strings.TrimSpace(word[:i])
	}
	return strings.TrimSpace(word)
}
