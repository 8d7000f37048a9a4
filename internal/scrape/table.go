// Package scrape extracts numeric tables from exchange report pages. The
// TWSE pages this handles are Big5-encoded and carry their data in plain
// HTML tables with comma-grouped numbers.
package scrape

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Table holds one extracted HTML table: the header row (if any) and the
// body rows as raw cell strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// Decode converts a page body from the named charset ("big5", "ms950",
// "utf-8", ...) to UTF-8. An empty or unknown charset name is an error;
// the caller decides the charset per source, it is not sniffed.
func Decode(body []byte, charset string) ([]byte, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: unknown charset %q", charset)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: decode %s", charset)
	}
	return decoded, nil
}

// ExtractTable parses UTF-8 HTML and returns the index-th table matching
// the goquery selector. Cells are trimmed; a row of <th> cells (or the
// first row, when no <th> is present) becomes the header.
func ExtractTable(html []byte, selector string, index int) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	tables := doc.Find(selector)
	if tables.Length() <= index {
		return nil, eris.Errorf("scrape: selector %q matched %d tables, want index %d", selector, tables.Length(), index)
	}

	out := &Table{}
	tables.Eq(index).Find("tr").Each(func(_ int, row *goquery.Selection) {
		ths := row.Find("th")
		if ths.Length() > 0 {
			if out.Header == nil {
				out.Header = cellTexts(ths)
			}
			return
		}
		tds := row.Find("td")
		if tds.Length() == 0 {
			return
		}
		out.Rows = append(out.Rows, cellTexts(tds))
	})

	if out.Header == nil && len(out.Rows) > 0 {
		out.Header = out.Rows[0]
		out.Rows = out.Rows[1:]
	}
	return out, nil
}

func cellTexts(sel *goquery.Selection) []string {
	cells := make([]string, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		cells[i] = strings.TrimSpace(s.Text())
	})
	return cells
}

// Number parses an exchange-formatted numeric cell: comma grouping and a
// leading "+" are stripped, parenthesized values are negative. Blank cells
// and placeholder dashes mean "not observed" and return (nil, nil); a cell
// that is none of these but still unparseable is an error.
func Number(cell string) (*float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" || s == "-" || s == "--" || s == "N/A" {
		return nil, nil
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("scrape: unparseable number %q", cell)
	}
	if neg {
		v = -v
	}
	return &v, nil
}

// ReadAndDecode reads a whole body and decodes it from charset, a
// convenience for callers holding an io.Reader.
func ReadAndDecode(r io.Reader, charset string) ([]byte, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}
	return Decode(body, charset)
}
