package policy

import (
	"fmt"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
)

// Document is the on-disk YAML form of a policy. Money and rates accept
// human forms such as "$1,250.00" and "20%".
type Document struct {
	PolicyID  string `yaml:"policy_id"`
	PatientID string `yaml:"patient_id"`

	Network struct {
		Default   string            `yaml:"default"`
		Providers map[string]string `yaml:"providers"`
	} `yaml:"network"`
	OutOfNetworkBenefit bool `yaml:"out_of_network_benefit"`

	CoveredProcedures []string `yaml:"covered_procedures"`
	Exclusions        []string `yaml:"exclusions"`

	DeductibleRemaining     any            `yaml:"deductible_remaining"`
	Coinsurance             any            `yaml:"coinsurance"`
	OutOfNetworkCoinsurance any            `yaml:"out_of_network_coinsurance"`
	Copays                  map[string]any `yaml:"copays"`

	ProcedureLimits          map[string]int `yaml:"procedure_limits"`
	PriorAuthRequired        []string       `yaml:"prior_auth_required"`
	MedicalNecessityRequired bool           `yaml:"medical_necessity_required"`
}

// ToPolicy validates the document and converts it to a model.Policy.
func (d *Document) ToPolicy() (*model.Policy, error) {
	if d.PatientID == "" {
		return nil, fmt.Errorf("policy %q: patient_id is required", d.PolicyID)
	}

	p := &model.Policy{
		PolicyID:                 d.PolicyID,
		PatientID:                d.PatientID,
		DefaultNetwork:           d.Network.Default,
		ProviderNetwork:          d.Network.Providers,
		OutOfNetworkBenefit:      d.OutOfNetworkBenefit,
		CoveredProcedures:        normalizeCodes(d.CoveredProcedures),
		Exclusions:               normalizeCodes(d.Exclusions),
		PriorAuthRequired:        normalizeCodes(d.PriorAuthRequired),
		MedicalNecessityRequired: d.MedicalNecessityRequired,
	}
	for _, n := range append([]string{p.DefaultNetwork}, mapValues(p.ProviderNetwork)...) {
		if n != "" && n != model.InNetwork && n != model.OutOfNetwork {
			return nil, fmt.Errorf("policy %q: unknown network status %q", d.PolicyID, n)
		}
	}

	if d.DeductibleRemaining != nil {
		cents, ok := normalize.AnyToCents(d.DeductibleRemaining)
		if !ok || cents < 0 {
			return nil, fmt.Errorf("policy %q: invalid deductible_remaining %v", d.PolicyID, d.DeductibleRemaining)
		}
		p.DeductibleRemainingCents = cents
	}

	var err error
	if p.CoinsuranceBPS, err = normalize.ParseRate(d.Coinsurance); err != nil {
		return nil, fmt.Errorf("policy %q: coinsurance: %w", d.PolicyID, err)
	}
	if d.OutOfNetworkCoinsurance == nil {
		p.OutOfNetworkCoinsuranceBPS = p.CoinsuranceBPS
	} else if p.OutOfNetworkCoinsuranceBPS, err = normalize.ParseRate(d.OutOfNetworkCoinsurance); err != nil {
		return nil, fmt.Errorf("policy %q: out_of_network_coinsurance: %w", d.PolicyID, err)
	}

	if len(d.Copays) > 0 {
		p.Copays = make(map[string]int64, len(d.Copays))
		for code, v := range d.Copays {
			cents, ok := normalize.AnyToCents(v)
			if !ok || cents < 0 {
				return nil, fmt.Errorf("policy %q: invalid copay %v for %s", d.PolicyID, v, code)
			}
			p.Copays[normalize.Code(code)] = cents
		}
	}

	if len(d.ProcedureLimits) > 0 {
		p.ProcedureLimits = make(map[string]int, len(d.ProcedureLimits))
		for code, limit := range d.ProcedureLimits {
			if limit < 0 {
				return nil, fmt.Errorf("policy %q: negative limit for %s", d.PolicyID, code)
			}
			p.ProcedureLimits[normalize.Code(code)] = limit
		}
	}
	return p, nil
}

func normalizeCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if n := normalize.Code(c); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
