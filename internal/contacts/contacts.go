// Package contacts parses a tabular contact file into normalized records.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

// DefaultName is used when a row has no name field.
const DefaultName = "Unknown"

var (
	// ErrNotFound wraps a missing contact file.
	ErrNotFound = errors.New("contact file not found")
	// ErrParse wraps malformed tabular data.
	ErrParse = errors.New("contact file parse error")
)

// Contact is one normalized recipient. Phone is always present and already
// in transport address form. Message empty means "use the run default".
// Immutable after Load.
type Contact struct {
	Name    string
	Phone   string
	Message string
}

// Source loads contact files.
type Source struct {
	norm phone.Normalizer
	log  logx.Logger
}

func NewSource(norm phone.Normalizer, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{norm: norm, log: log}
}

// Load reads a CSV file with a header row. Recognized columns: name, phone,
// message; unknown columns are ignored. Rows without a phone are dropped;
// a missing name defaults to DefaultName. The result is fully materialized
// so batch mode knows the total up front.
func (s *Source) Load(path string) ([]Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	out, err := s.parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	s.log.Info("contacts loaded", logx.String("path", path), logx.Int("count", len(out)))
	return out, nil
}

func (s *Source) parse(r io.Reader) ([]Contact, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// Short rows degrade via defaulting instead of aborting the whole file.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	phoneIdx, ok := cols["phone"]
	if !ok {
		return nil, errors.New("missing required column: phone")
	}
	nameIdx, hasName := cols["name"]
	msgIdx, hasMsg := cols["message"]

	var out []Contact
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		raw := field(rec, phoneIdx)
		if raw == "" {
			// A row is accepted only if it carries a phone.
			continue
		}

		c := Contact{
			Name:  DefaultName,
			Phone: s.norm.Normalize(raw),
		}
		if hasName {
			if v := field(rec, nameIdx); v != "" {
				c.Name = v
			}
		}
		if hasMsg {
			c.Message = field(rec, msgIdx)
		}
		out = append(out, c)
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
