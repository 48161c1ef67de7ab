package source

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/normalize"
)

// CSV streams candidates from a CSV file with a header row. Columns are
// matched by the same aliases as any other raw record, so Spanish and
// English exports both work.
type CSV struct {
	userID  string
	f       *os.File
	r       *csv.Reader
	headers []string
	line    int
}

// OpenCSV opens path and reads its header row.
func OpenCSV(path, userID string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open csv %s", path)
	}
	s, err := NewCSV(f, userID)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	s.f = f
	return s, nil
}

// NewCSV reads a header row from r.
func NewCSV(r io.Reader, userID string) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("source: csv is empty")
		}
		return nil, eris.Wrap(err, "source: read csv header")
	}
	for i, h := range headers {
		headers[i] = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	}
	return &CSV{userID: userID, r: cr, headers: headers, line: 1}, nil
}

// Next implements Source. Blank rows are skipped.
func (s *CSV) Next(ctx context.Context) (Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		row, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return Item{}, ErrDone
		}
		if err != nil {
			return Item{}, eris.Wrapf(err, "source: read csv line %d", s.line+1)
		}
		s.line++

		raw := make(map[string]any, len(s.headers))
		empty := true
		for i, h := range s.headers {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				raw[h] = row[i]
				empty = false
			}
		}
		if empty {
			continue
		}
		return Item{UserID: s.userID, Candidate: normalize.Record(raw)}, nil
	}
}

// Close closes the underlying file, if OpenCSV opened one.
func (s *CSV) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
