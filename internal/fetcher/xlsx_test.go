package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, "Valuation", [][]string{
		{"Monthly PER / PBR"},
		{"Index", "PER", "PBR", "Yield"},
		{"TOPIX", "15.3", "1.32", "2.21"},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"TOPIX", "15.3", "1.32", "2.21"}, rows[0])
}

func TestReadXLSXSheetByName(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, "Data", [][]string{{"a", "b"}})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Data"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadXLSXSheetIndexOutOfRange(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, "Data", [][]string{{"a"}})
	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
