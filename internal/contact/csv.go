package contact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reject records one contact row that could not be loaded. Rejected rows are
// reported, never fatal to the batch.
type Reject struct {
	Line int
	Err  error
}

// LoadResult is the outcome of loading one contact file.
type LoadResult struct {
	Recipients []Recipient
	Rejects    []Reject
}

// LoadCSV reads an ordered contact list from a CSV file with a header row.
//
// The header names become template field names. A "phone_number" (or "phone")
// column is required; a "name" column is recognized; every other column lands
// in Recipient.Fields. Malformed rows are collected in Rejects and skipped.
func LoadCSV(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader) (*LoadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are a per-row problem, not a file problem
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("contact: reading csv header: %w", err)
	}
	cols := make([]string, len(header))
	phoneIdx := -1
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.ToLower(h))
		if phoneIdx < 0 && (cols[i] == "phone_number" || cols[i] == "phone") {
			phoneIdx = i
		}
	}
	if phoneIdx < 0 {
		return nil, fmt.Errorf("contact: csv has no phone_number column (header: %s)", strings.Join(cols, ","))
	}

	res := &LoadResult{}
	line := 1
	for {
		line++
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Rejects = append(res.Rejects, Reject{Line: line, Err: err})
			continue
		}
		if len(rec) <= phoneIdx {
			res.Rejects = append(res.Rejects, Reject{Line: line, Err: ErrMissingPhone})
			continue
		}

		r := Recipient{Fields: make(map[string]string, len(cols))}
		for i, v := range rec {
			if i >= len(cols) {
				break
			}
			v = strings.TrimSpace(v)
			switch cols[i] {
			case "phone_number", "phone":
				if i == phoneIdx {
					r.Phone = v
				} else {
					r.Fields[cols[i]] = v
				}
			case "name":
				r.Name = v
				r.Fields["name"] = v
			default:
				r.Fields[cols[i]] = v
			}
		}

		r, err = Normalize(r)
		if err != nil {
			res.Rejects = append(res.Rejects, Reject{Line: line, Err: err})
			continue
		}
		res.Recipients = append(res.Recipients, r)
	}
	return res, nil
}
