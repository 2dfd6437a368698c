package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/evidence"
	"github.com/sells-group/addrverify/internal/model"
)

// WriteAudit writes one JSON line per decision, replacing path.
func WriteAudit(path string, decisions []model.Decision) error {
	return writeAtomic(path, func(f *os.File) error {
		return encodeDecisions(f, decisions)
	})
}

// AppendAudit appends decisions to an existing audit trail. Earlier lines
// are never rewritten.
func AppendAudit(path string, decisions []model.Decision) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create audit dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "report: open audit %s", path)
	}
	if err := encodeDecisions(f, decisions); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "report: close audit")
}

func encodeDecisions(w io.Writer, decisions []model.Decision) error {
	enc := json.NewEncoder(w)
	for _, d := range decisions {
		if err := enc.Encode(d); err != nil {
			return eris.Wrapf(err, "report: encode decision %s", d.ID)
		}
	}
	return nil
}

// ReadAudit reads every decision from an audit trail in file order.
func ReadAudit(path string) ([]model.Decision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open audit %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []model.Decision
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var d model.Decision
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, eris.Wrapf(err, "report: parse audit line %d", line)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(sc.Err(), "report: scan audit")
}

// ReadEnhanced reads an enhanced table back into rows.
func ReadEnhanced(path string) ([]evidence.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "report: read enhanced header")
	}

	var rows []evidence.Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "report: read enhanced row")
		}
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				m[h] = rec[i]
			}
		}
		rows = append(rows, evidence.RowFromMap(m))
	}
}
