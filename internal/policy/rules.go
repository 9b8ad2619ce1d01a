// Package policy evaluates redacted model output against
// jurisdiction-specific housing rules: broker-fee legality, security
// deposit caps, and Fair-Chance stage gating of background checks.
package policy

import "strings"

// CheckType is a tenant-screening check regulated by Fair-Chance rules.
type CheckType string

const (
	CheckCriminal CheckType = "criminal"
	CheckCredit   CheckType = "credit"
	CheckEviction CheckType = "eviction"
)

// Application stages in order. Checks forbidden before a conditional
// offer become permissible from StageConditionalOffer onward.
const (
	StageInquiry          = "inquiry"
	StageApplication      = "application"
	StageScreening        = "screening"
	StageConditionalOffer = "conditional_offer"
	StageLeaseSigning     = "lease_signing"
)

var defaultStages = []string{
	StageInquiry,
	StageApplication,
	StageScreening,
	StageConditionalOffer,
	StageLeaseSigning,
}

// FairChanceRules gates background checks by application stage.
type FairChanceRules struct {
	Enabled              bool        `koanf:"enabled" json:"enabled"`
	ForbiddenBeforeOffer []CheckType `koanf:"forbidden_before_offer" json:"forbidden_before_offer"`
	Stages               []string    `koanf:"stages" json:"stages"`
}

// Rules is the static rule set for one jurisdiction.
type Rules struct {
	ID   string `koanf:"id" json:"id"`
	Name string `koanf:"name" json:"name"`

	// BrokerFeeTenantProhibited marks jurisdictions where assigning the
	// brokerage fee to the tenant is illegal.
	BrokerFeeTenantProhibited bool `koanf:"broker_fee_tenant_prohibited" json:"broker_fee_tenant_prohibited"`

	// MaxDepositMonths caps the security deposit as a multiple of the
	// monthly rent.
	MaxDepositMonths float64 `koanf:"max_deposit_months" json:"max_deposit_months"`

	FairChance FairChanceRules `koanf:"fair_chance" json:"fair_chance"`
}

// preOfferStages returns the stages that precede the conditional offer.
func (r Rules) preOfferStages() map[string]bool {
	stages := r.FairChance.Stages
	if len(stages) == 0 {
		stages = defaultStages
	}
	pre := make(map[string]bool)
	for _, s := range stages {
		if s == StageConditionalOffer {
			break
		}
		pre[s] = true
	}
	return pre
}

// builtinRules are the embedded defaults. The standalone market-rule
// catalog used elsewhere in the product is a separate system; this set
// only covers what the gate itself enforces.
func builtinRules() []Rules {
	return []Rules{
		{
			ID:                        "nyc",
			Name:                      "New York City",
			BrokerFeeTenantProhibited: true,
			MaxDepositMonths:          1,
			FairChance: FairChanceRules{
				Enabled:              true,
				ForbiddenBeforeOffer: []CheckType{CheckCriminal, CheckCredit, CheckEviction},
				Stages:               defaultStages,
			},
		},
		{
			ID:                        "ca",
			Name:                      "California",
			BrokerFeeTenantProhibited: false,
			MaxDepositMonths:          1,
			FairChance: FairChanceRules{
				Enabled:              true,
				ForbiddenBeforeOffer: []CheckType{CheckCriminal},
				Stages:               defaultStages,
			},
		},
		{
			ID:                        "ma",
			Name:                      "Massachusetts",
			BrokerFeeTenantProhibited: true,
			MaxDepositMonths:          1,
			FairChance: FairChanceRules{
				Enabled: false,
			},
		},
	}
}

// defaultRules is the permissive fallback for unknown jurisdictions.
var defaultRules = Rules{
	ID:               "default",
	Name:             "Default (permissive)",
	MaxDepositMonths: 3,
	FairChance:       FairChanceRules{Enabled: false},
}

// jurisdictionAliases maps common spellings onto canonical ids.
var jurisdictionAliases = map[string]string{
	"new-york":      "nyc",
	"new-york-city": "nyc",
	"ny":            "nyc",
	"california":    "ca",
	"massachusetts": "ma",
	"boston":        "ma",
}

// NormalizeJurisdiction lowercases, trims, and canonicalizes a
// jurisdiction id.
func NormalizeJurisdiction(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.NewReplacer(" ", "-", "_", "-").Replace(id)
	if canonical, ok := jurisdictionAliases[id]; ok {
		return canonical
	}
	return id
}
