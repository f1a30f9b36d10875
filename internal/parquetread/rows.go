package parquetread

import (
	"fmt"
	"io"
	"strings"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
)

const readBatchSize = 1024

// Stats counts rows seen by Each.
type Stats struct {
	RowsRead     int64
	RowsRejected int64
}

// Each streams every row, normalizes it into a ReferenceCode, and calls fn.
// Rows with an empty code, an unknown code type, or no description are
// counted as rejected and skipped.
func (r *Reader) Each(fn func(model.ReferenceCode) error) (Stats, error) {
	var st Stats
	buf := make([]model.ReferenceCodeRow, readBatchSize)
	for {
		n, readErr := r.Read(buf)
		for i := 0; i < n; i++ {
			st.RowsRead++
			rc, ok := toReferenceCode(&buf[i])
			if !ok {
				st.RowsRejected++
				continue
			}
			if err := fn(rc); err != nil {
				return st, err
			}
		}
		if readErr == io.EOF {
			return st, nil
		}
		if readErr != nil {
			return st, fmt.Errorf("read parquet at row %d: %w", st.RowsRead, readErr)
		}
	}
}

func toReferenceCode(row *model.ReferenceCodeRow) (model.ReferenceCode, bool) {
	code := normalize.Code(row.Code)
	ct, ok := model.CodeTypeByName(strings.TrimSpace(row.CodeType))
	desc := strings.TrimSpace(row.Description)
	if code == "" || !ok || desc == "" {
		return model.ReferenceCode{}, false
	}
	rc := model.ReferenceCode{Code: code, CodeType: ct.Table, Description: desc}
	if row.Category != nil {
		rc.Category = strings.TrimSpace(*row.Category)
	}
	return rc, true
}
