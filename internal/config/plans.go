package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// plansFile is the YAML shape of NOTIPI_PLANS_FILE:
//
//	plans:
//	  free: {email: 5000, sms: 0, push: 1000}
//	  enterprise: {email: -1, sms: -1, push: -1}
type plansFile struct {
	Plans map[string]map[string]int64 `yaml:"plans"`
}

// LoadPlans returns the built-in plan quotas overlaid with any entries from
// path. An empty path returns the defaults.
func LoadPlans(path string) (map[model.Plan]model.PlanQuotas, error) {
	plans := model.DefaultPlans()
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}

	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plans file %s: %w", path, err)
	}

	for name, limits := range file.Plans {
		plan := model.Plan(name)
		if !plan.Valid() {
			return nil, fmt.Errorf("plans file %s: unknown plan %q", path, name)
		}
		for chName, limit := range limits {
			ch := model.Channel(chName)
			if !ch.Valid() {
				return nil, fmt.Errorf("plans file %s: unknown channel %q in plan %s", path, chName, name)
			}
			if limit < model.Unlimited {
				return nil, fmt.Errorf("plans file %s: %s/%s limit %d is below -1", path, name, chName, limit)
			}
			plans[plan][ch] = limit
		}
	}
	return plans, nil
}
