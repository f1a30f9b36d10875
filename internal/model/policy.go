package model

// Network status values.
const (
	InNetwork    = "in-network"
	OutOfNetwork = "out-of-network"
	NotCovered   = "not covered"
)

// Policy is a patient's active coverage document. Coinsurance rates are
// the patient's share in basis points (2000 = 20%).
type Policy struct {
	PolicyID  string `json:"policy_id" yaml:"policy_id"`
	PatientID string `json:"patient_id" yaml:"patient_id"`

	DefaultNetwork  string            `json:"default_network" yaml:"default_network"`
	ProviderNetwork map[string]string `json:"provider_network,omitempty" yaml:"provider_network"`

	CoveredProcedures   []string `json:"covered_procedures,omitempty" yaml:"covered_procedures"`
	Exclusions          []string `json:"exclusions,omitempty" yaml:"exclusions"`
	OutOfNetworkBenefit bool     `json:"out_of_network_benefit" yaml:"out_of_network_benefit"`

	DeductibleRemainingCents   int64 `json:"deductible_remaining_cents" yaml:"-"`
	CoinsuranceBPS             int32 `json:"coinsurance_bps" yaml:"-"`
	OutOfNetworkCoinsuranceBPS int32 `json:"out_of_network_coinsurance_bps" yaml:"-"`

	// Copays are flat per-line amounts owed before the deductible, by code.
	Copays map[string]int64 `json:"copays_cents,omitempty" yaml:"-"`

	ProcedureLimits          map[string]int `json:"procedure_limits,omitempty" yaml:"procedure_limits"`
	PriorAuthRequired        []string       `json:"prior_auth_required,omitempty" yaml:"prior_auth_required"`
	MedicalNecessityRequired bool           `json:"medical_necessity_required" yaml:"medical_necessity_required"`
}

// NetworkFor returns the network status of providerID under this policy.
func (p *Policy) NetworkFor(providerID string) string {
	if n, ok := p.ProviderNetwork[providerID]; ok && n != "" {
		return n
	}
	if p.DefaultNetwork != "" {
		return p.DefaultNetwork
	}
	return InNetwork
}

// CoinsuranceFor returns the patient coinsurance share for a network.
func (p *Policy) CoinsuranceFor(network string) int32 {
	if network == OutOfNetwork {
		return p.OutOfNetworkCoinsuranceBPS
	}
	return p.CoinsuranceBPS
}

// Excludes reports whether code is explicitly excluded.
func (p *Policy) Excludes(code string) bool {
	return contains(p.Exclusions, code)
}

// Covers reports whether code is in the covered set. An empty set covers
// every code that is not excluded.
func (p *Policy) Covers(code string) bool {
	if len(p.CoveredProcedures) == 0 {
		return true
	}
	return contains(p.CoveredProcedures, code)
}

// RequiresPriorAuth reports whether code needs authorization on file.
func (p *Policy) RequiresPriorAuth(code string) bool {
	return contains(p.PriorAuthRequired, code)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
