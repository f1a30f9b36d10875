// Package justify decides which procedures on a bill are supported by at
// least one of its diagnoses.
package justify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
	"github.com/gyeh/billadj/internal/oracle"
	"github.com/gyeh/billadj/internal/retry"
)

const (
	rationaleSupported   = "supported by diagnosis on the bill"
	rationaleUnsupported = "no diagnosis on the bill supports this procedure"
	rationaleNoDiagnoses = "no diagnosis codes on the bill"
	rationaleUnavailable = "justification unavailable"
)

// Checker attributes diagnoses to procedures with one oracle call per bill.
type Checker struct {
	Oracle oracle.Oracle
	Retry  retry.Config
	Log    zerolog.Logger
}

// Check returns the justification outcome for b. Oracle failures are folded
// into an indeterminate result; only cancellation is returned as an error.
func (c *Checker) Check(ctx context.Context, b *model.Bill) (*model.JustificationResult, error) {
	procs := procedures(b)
	diags := diagnoses(b)
	res := &model.JustificationResult{}
	if len(procs) == 0 {
		return res, nil
	}

	if len(diags) == 0 {
		for _, p := range procs {
			add(res, p.Code, nil, rationaleNoDiagnoses)
		}
		res.Issues = append(res.Issues, model.Issue{
			Kind:   model.IssueNoDiagnosisBasis,
			Detail: "No ICD codes available to justify CPTs.",
		})
		return res, nil
	}

	attribution, err := retry.Do(ctx, c.Retry, "oracle.justify", func(ctx context.Context) (map[string][]string, error) {
		return c.Oracle.Justify(ctx, procs, diags)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.Log.Warn().Err(err).Str("table_id", b.TableID).Msg("justification unavailable")
		res.Indeterminate = true
		for _, p := range procs {
			add(res, p.Code, nil, rationaleUnavailable)
		}
		res.Issues = append(res.Issues, model.Issue{
			Kind:   model.IssueIndeterminate,
			Detail: "Oracle error during CPT justification.",
		})
		return res, nil
	}

	onBill := make(map[string]bool, len(diags))
	for _, d := range diags {
		onBill[d.Code] = true
	}
	supported := make(map[string][]string, len(attribution))
	for proc, codes := range attribution {
		proc = normalize.Code(proc)
		for _, dc := range codes {
			dc = normalize.Code(dc)
			if onBill[dc] && !contains(supported[proc], dc) {
				supported[proc] = append(supported[proc], dc)
			}
		}
	}

	for _, p := range procs {
		s := supported[p.Code]
		if len(s) > 0 {
			add(res, p.Code, s, rationaleSupported)
			continue
		}
		add(res, p.Code, nil, rationaleUnsupported)
		res.Issues = append(res.Issues, model.Issue{
			Code:   p.Code,
			Kind:   model.IssueUnjustified,
			Detail: fmt.Sprintf("CPT %s is not justified by any ICD code on the bill.", p.Code),
		})
	}
	return res, nil
}

func procedures(b *model.Bill) []oracle.Described {
	var out []oracle.Described
	seen := make(map[string]bool)
	for _, li := range b.Items {
		code := normalize.Code(li.Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, oracle.Described{Code: code, Description: li.Description})
	}
	return out
}

func diagnoses(b *model.Bill) []oracle.Described {
	var out []oracle.Described
	seen := make(map[string]bool)
	for _, d := range b.Diagnoses {
		code := normalize.Code(d.Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, oracle.Described{Code: code, Description: d.Description})
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// add records one procedure's outcome, listing it as unjustified when no
// diagnosis supports it.
func add(res *model.JustificationResult, code string, supporting []string, rationale string) {
	ok := len(supporting) > 0
	res.Procedures = append(res.Procedures, model.ProcedureJustification{
		Code:                code,
		Justified:           ok,
		SupportingDiagnoses: supporting,
		Rationale:           rationale,
	})
	if !ok {
		res.UnjustifiedCodes = append(res.UnjustifiedCodes, code)
	}
}
