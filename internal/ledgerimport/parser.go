package ledgerimport

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrUnsupportedFormat is returned for formats the parser does not handle.
	ErrUnsupportedFormat = errors.New("ledgerimport: unsupported format")
	// ErrMissingColumns is returned when the export lacks a date or account column.
	ErrMissingColumns = errors.New("ledgerimport: missing mandatory columns")
	// ErrEmptyFile is returned for exports with no data rows at all.
	ErrEmptyFile = errors.New("ledgerimport: empty file")
)

// Parse turns raw export bytes into the ordered tagged-row sequence.
// Malformed rows are surfaced as ParsedRow.Err, never silently dropped.
// Structural problems (unknown format, missing mandatory columns) abort the
// whole file.
func Parse(data []byte, format Format) ([]ParsedRow, error) {
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatXML:
		return parseXML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// decodeText normalizes the export bytes to UTF-8. Bookkeeping products
// commonly export UTF-16 with a BOM; unicode.BOMOverride sniffs and strips it.
func decodeText(data []byte) io.Reader {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return transform.NewReader(bytes.NewReader(data), decoder)
}

// columnLayout holds resolved header positions, -1 when absent.
type columnLayout struct {
	date        int
	account     int
	particulars int
	debit       int
	credit      int
	balance     int
}

func resolveColumns(header []string) (columnLayout, error) {
	layout := columnLayout{date: -1, account: -1, particulars: -1, debit: -1, credit: -1, balance: -1}
	for i, raw := range header {
		token := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case layout.date < 0 && strings.Contains(token, "date"):
			layout.date = i
		case layout.account < 0 && (strings.Contains(token, "account") || strings.Contains(token, "ledger")):
			layout.account = i
		case layout.particulars < 0 && (strings.Contains(token, "particulars") || strings.Contains(token, "narration")):
			layout.particulars = i
		case layout.debit < 0 && strings.Contains(token, "debit"):
			layout.debit = i
		case layout.credit < 0 && strings.Contains(token, "credit"):
			layout.credit = i
		case layout.balance < 0 && strings.Contains(token, "balance"):
			layout.balance = i
		}
	}
	var missing []string
	if layout.date < 0 {
		missing = append(missing, "date")
	}
	if layout.account < 0 {
		missing = append(missing, "account/ledger")
	}
	if len(missing) > 0 {
		return layout, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return layout, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseCSV(data []byte) ([]ParsedRow, error) {
	reader := csv.NewReader(decodeText(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("ledgerimport: read header: %w", err)
	}
	layout, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []ParsedRow
	index := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		index++
		if err != nil {
			rows = append(rows, ParsedRow{Index: index, Err: &RowError{
				Index:   index,
				Field:   "line",
				Message: "malformed line",
				Raw:     err.Error(),
			}})
			continue
		}
		raw := RawRow{
			Date:        field(record, layout.date),
			Account:     field(record, layout.account),
			Particulars: field(record, layout.particulars),
			Debit:       field(record, layout.debit),
			Credit:      field(record, layout.credit),
			Balance:     field(record, layout.balance),
		}
		if isNonEntry(raw) {
			continue
		}
		rows = append(rows, normalizeRow(index, raw))
	}
	return rows, nil
}

// xmlEntry mirrors one record element of an XML export. Child element names
// follow the same vocabulary as the CSV headers.
type xmlEntry struct {
	fields map[string]string
}

var xmlRecordNames = map[string]bool{
	"entry":       true,
	"row":         true,
	"transaction": true,
	"voucher":     true,
}

// parseXML maps repeated record elements (entry/row/transaction/voucher) to
// rows, matching child element names with the CSV header rules.
func parseXML(data []byte) ([]ParsedRow, error) {
	decoder := xml.NewDecoder(decodeText(data))

	var rows []ParsedRow
	index := 0
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if index == 0 {
				return nil, fmt.Errorf("ledgerimport: parse xml: %w", err)
			}
			index++
			rows = append(rows, ParsedRow{Index: index, Err: &RowError{
				Index:   index,
				Field:   "line",
				Message: "malformed element",
				Raw:     err.Error(),
			}})
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !xmlRecordNames[strings.ToLower(start.Name.Local)] {
			continue
		}
		entry, err := decodeXMLEntry(decoder, start)
		index++
		if err != nil {
			rows = append(rows, ParsedRow{Index: index, Err: &RowError{
				Index:   index,
				Field:   "line",
				Message: "malformed element",
				Raw:     err.Error(),
			}})
			continue
		}
		raw := RawRow{
			Date:        entry.lookup("date"),
			Account:     entry.lookup("account", "ledger"),
			Particulars: entry.lookup("particulars", "narration"),
			Debit:       entry.lookup("debit"),
			Credit:      entry.lookup("credit"),
			Balance:     entry.lookup("balance"),
		}
		if isNonEntry(raw) {
			continue
		}
		rows = append(rows, normalizeRow(index, raw))
	}
	if index == 0 {
		return nil, fmt.Errorf("%w: no ledger entry elements found", ErrMissingColumns)
	}
	return rows, nil
}

func decodeXMLEntry(decoder *xml.Decoder, start xml.StartElement) (xmlEntry, error) {
	entry := xmlEntry{fields: map[string]string{}}
	var current string
	for {
		tok, err := decoder.Token()
		if err != nil {
			return entry, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = strings.ToLower(t.Name.Local)
		case xml.CharData:
			if current != "" {
				entry.fields[current] += string(t)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return entry, nil
			}
			current = ""
		}
	}
}

func (e xmlEntry) lookup(substrings ...string) string {
	for name, value := range e.fields {
		for _, sub := range substrings {
			if strings.Contains(name, sub) {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// isNonEntry reports filler lines: no account name and nothing posted on
// either side. These are excluded from the row sequence entirely.
func isNonEntry(raw RawRow) bool {
	return raw.Account == "" && amountIsZero(raw.Debit) && amountIsZero(raw.Credit)
}
