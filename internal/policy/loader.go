package policy

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// rulesFile is the YAML shape of a jurisdiction rules file:
//
//	jurisdictions:
//	  - id: nyc
//	    broker_fee_tenant_prohibited: true
//	    max_deposit_months: 1
//	    fair_chance:
//	      enabled: true
//	      forbidden_before_offer: [criminal, credit, eviction]
type rulesFile struct {
	Jurisdictions []Rules `koanf:"jurisdictions"`
}

// LoadRulesFile reads jurisdiction rule sets from a YAML file. Loaded
// rules layer over the embedded defaults via WithRules.
func LoadRulesFile(path string) ([]Rules, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading rules file %s: %w", path, err)
	}

	var rf rulesFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	for i, r := range rf.Jurisdictions {
		if r.ID == "" {
			return nil, fmt.Errorf("rules file %s: jurisdiction %d has no id", path, i)
		}
	}
	return rf.Jurisdictions, nil
}
