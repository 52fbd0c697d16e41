// Package report persists fitted parameters as the "k","m","ll" record
// read by offer generation.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/model"
)

// Header is the first line of a params record.
const Header = `"k","m","ll"`

// FileSuffix completes a params file name after the subject key.
const FileSuffix = "_fitkparams.txt"

// Write encodes rec as a header line plus one line of k, m, ll. Values use
// the shortest representation that parses back to the same float64.
func Write(w io.Writer, rec model.ParamRecord) error {
	_, err := fmt.Fprintf(w, "%s\n%s,%s,%s\n", Header,
		formatFloat(rec.K), formatFloat(rec.M), formatFloat(rec.LL))
	return eris.Wrap(err, "report: write record")
}

// Read decodes a params record. It also accepts the older "%f, %f, %f"
// layout with spaces after the commas.
func Read(r io.Reader) (model.ParamRecord, error) {
	sc := bufio.NewScanner(r)

	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return model.ParamRecord{}, eris.Wrap(err, "report: read record")
	}
	if len(lines) != 2 {
		return model.ParamRecord{}, eris.Errorf("report: expected header and one value line, got %d lines", len(lines))
	}
	if lines[0] != Header {
		return model.ParamRecord{}, eris.Errorf("report: unexpected header %q", lines[0])
	}

	parts := strings.Split(lines[1], ",")
	if len(parts) != 3 {
		return model.ParamRecord{}, eris.Errorf("report: expected 3 values, got %d", len(parts))
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.ParamRecord{}, eris.Wrapf(err, "report: parse value %d", i+1)
		}
		vals[i] = v
	}
	return model.ParamRecord{K: vals[0], M: vals[1], LL: vals[2]}, nil
}

// ParamsPath is <dir>/<subject key>_fitkparams.txt.
func ParamsPath(dir, subject string) string {
	return filepath.Join(dir, model.SubjectKey(subject)+FileSuffix)
}

// Save writes rec to its params file in dir, creating dir if needed. The
// file is replaced atomically.
func Save(dir string, rec model.ParamRecord) (string, error) {
	if rec.Subject == "" {
		return "", eris.New("report: subject is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create %s", dir)
	}

	path := ParamsPath(dir, rec.Subject)
	tmp, err := os.CreateTemp(dir, ".fitkparams-*")
	if err != nil {
		return "", eris.Wrap(err, "report: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Write(tmp, rec); err != nil {
		tmp.Close() //nolint:errcheck
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "report: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrapf(err, "report: rename to %s", path)
	}
	return path, nil
}

// Load reads the params file for subject from dir.
func Load(dir, subject string) (model.ParamRecord, error) {
	path := ParamsPath(dir, subject)
	f, err := os.Open(path)
	if err != nil {
		return model.ParamRecord{}, eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rec, err := Read(f)
	if err != nil {
		return model.ParamRecord{}, eris.Wrapf(err, "report: %s", path)
	}
	rec.Subject = model.SubjectKey(subject)
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
