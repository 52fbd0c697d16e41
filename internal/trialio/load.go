package trialio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitk/internal/model"
)

// Load reads the trial table at path. FormatAuto picks a format from the
// file extension.
func Load(ctx context.Context, path string, format Format) (model.Trials, error) {
	if format == FormatAuto || format == "" {
		format = DetectFormat(path)
	}
	layout := LayoutFor(format)

	var (
		trials model.Trials
		err    error
	)
	switch format {
	case FormatXLSX:
		trials, err = ReadXLSX(path, layout)
	case FormatCSV, FormatStaircase:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "trialio: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		trials, err = ReadCSV(ctx, f, layout)
	default:
		return nil, eris.Errorf("trialio: unsupported format %q", format)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "trialio: load %s", path)
	}

	zap.L().Debug("trialio: loaded trials",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("trials", len(trials)),
		zap.Int("ll_choices", trials.CountLL()),
	)
	return trials, nil
}

// FindSubjectFile returns the staircase data file for a subject in dir,
// matching stairK_<key>_*xpd. With several matches the lexically first
// is used.
func FindSubjectFile(dir, subject string) (string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("stairK_%s_*xpd", model.SubjectKey(subject)))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", eris.Wrapf(err, "trialio: glob %s", pattern)
	}
	if len(matches) == 0 {
		return "", eris.Errorf("trialio: no staircase file for subject %s in %s", model.SubjectKey(subject), dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
