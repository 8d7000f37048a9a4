package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	HasHeader  bool // if true, the first row is returned separately
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// ReadCSV reads all rows from r. When opts.HasHeader is set, the first row
// is returned as header and excluded from rows. Variable field counts are
// tolerated; the daily indicator files are small enough that streaming is
// not worth the ceremony.
func ReadCSV(r io.Reader, opts CSVOptions) (header []string, rows [][]string, err error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	first := true
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			return header, rows, nil
		}
		if readErr != nil {
			return nil, nil, eris.Wrap(readErr, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if first && opts.HasHeader {
			first = false
			header = record
			continue
		}
		first = false
		rows = append(rows, record)
	}
}
