package trialio

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/model"
)

// record is one CSV row with its 1-based source line.
type record struct {
	line   int
	fields []string
}

// streamRecords reads r and sends rows to a channel. Both channels are
// closed when reading completes; at most one error is sent.
func streamRecords(ctx context.Context, r io.Reader, layout Layout) (<-chan record, <-chan error) {
	rowCh := make(chan record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		for i := 0; i < layout.SkipRows; i++ {
			if _, err := br.ReadString('\n'); err != nil {
				if err == io.EOF {
					return
				}
				errCh <- eris.Wrap(err, "csv: skip preamble")
				return
			}
		}

		reader := csv.NewReader(br)
		if layout.Delimiter != 0 {
			reader.Comma = layout.Delimiter
		}
		if layout.Comment != 0 {
			reader.Comment = layout.Comment
		}
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			fields, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			line, _ := reader.FieldPos(0)

			select {
			case rowCh <- record{line: line + layout.SkipRows, fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV parses a trial table. Malformed rows are reported as
// *model.ValidationError naming the source line and field.
func ReadCSV(ctx context.Context, r io.Reader, layout Layout) (model.Trials, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := streamRecords(ctx, r, layout)
	p := newParser(layout)
	for rec := range rowCh {
		if err := p.add(rec.line, rec.fields); err != nil {
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return p.result()
}

// WriteCSV writes trials with an r1,d1,r2,d2,choice header.
func WriteCSV(w io.Writer, trials model.Trials) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.TrialColumns); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, t := range trials {
		if err := cw.Write(trialFields(t)); err != nil {
			return eris.Wrap(err, "csv: write trial")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv: flush")
}

func trialFields(t model.Trial) []string {
	return []string{
		formatFloat(t.SSAmount),
		formatFloat(t.SSDelay),
		formatFloat(t.LLAmount),
		formatFloat(t.LLDelay),
		strconv.Itoa(int(t.Choice)),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
