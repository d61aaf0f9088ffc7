package importer

import (
	"bytes"
	"io"
	"strings"

	"github.com/clubejota/clube/internal/domain"
)

// Column names reported when a required header is missing.
const (
	ColumnEmail  = "E-mail"
	ColumnAmount = "Valor Líquido"
)

// Row is one data line of a payment export.
type Row struct {
	Line      int    `json:"line"` // 1-based, the header is line 1
	Email     string `json:"email"`
	NetAmount string `json:"net_amount"`
	Status    string `json:"status,omitempty"`
}

// ParseExport reads a PagBank-style CSV export. The header is matched by
// substring, case-insensitively; a missing e-mail or net amount column
// aborts with a *domain.FormatError. Blank lines are ignored.
func ParseExport(r io.Reader) ([]Row, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	lines := strings.Split(string(raw), "\n")

	header := SplitLine(strings.TrimRight(lines[0], "\r"))
	emailIdx, amountIdx, statusIdx := locateColumns(header)

	var missing []string
	if emailIdx < 0 {
		missing = append(missing, ColumnEmail)
	}
	if amountIdx < 0 {
		missing = append(missing, ColumnAmount)
	}
	if len(missing) > 0 {
		return nil, &domain.FormatError{Missing: missing}
	}

	var rows []Row
	for i, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := SplitLine(line)
		rows = append(rows, Row{
			Line:      i + 2,
			Email:     strings.ToLower(field(cols, emailIdx)),
			NetAmount: field(cols, amountIdx),
			Status:    field(cols, statusIdx),
		})
	}
	return rows, nil
}

// locateColumns finds the e-mail, net amount and status columns. A column
// named like "E-mail Cliente" wins over other e-mail columns.
func locateColumns(header []string) (email, amount, status int) {
	email, amount, status = -1, -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(h, "e-mail cliente"):
			email = i
		case strings.Contains(h, "e-mail") && email < 0:
			email = i
		case (strings.Contains(h, "valor líquido") || strings.Contains(h, "valor liquido")) && amount < 0:
			amount = i
		case strings.Contains(h, "status") && status < 0:
			status = i
		}
	}
	return email, amount, status
}

func field(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[idx])
}

// SplitLine splits one CSV line on commas outside double quotes. Quote
// characters only switch the in-field state and are not kept.
func SplitLine(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}
