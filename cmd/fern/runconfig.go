package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// runConfig is the file passed to `fern reconcile --config`
type runConfig struct {
	Mapping []models.FieldPair `yaml:"mapping" validate:"required,min=1,dive"`
	Rules   []ruleConfig       `yaml:"rules,omitempty" validate:"dive"`
	// RatioTolerance overrides the relative tolerance of ratio rules
	RatioTolerance *decimal.Decimal `yaml:"ratio_tolerance,omitempty"`
}

type ruleConfig struct {
	Name        string          `yaml:"name" validate:"required"`
	Description *string         `yaml:"description,omitempty"`
	Type        models.RuleType `yaml:"type" validate:"required,oneof=min-max ratio equality presence custom"`
	Field1      string          `yaml:"field1,omitempty"`
	Field2      *string         `yaml:"field2,omitempty"`
	Condition   *string         `yaml:"condition,omitempty"`
	Value       *string         `yaml:"value,omitempty"`
	// Enabled defaults to true
	Enabled *bool `yaml:"enabled,omitempty"`
}

func parseRunConfig(raw []byte) (*runConfig, error) {
	var cfg runConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	return &cfg, nil
}

func (c *runConfig) FieldMapping() *models.FieldMapping {
	return &models.FieldMapping{ID: "cli", Pairs: c.Mapping}
}

// ValidationRules numbers the rules in file order so results can refer to them
func (c *runConfig) ValidationRules() []models.ValidationRule {
	rules := make([]models.ValidationRule, len(c.Rules))
	for i, r := range c.Rules {
		rules[i] = models.ValidationRule{
			ID:          fmt.Sprintf("rule-%d", i+1),
			Name:        r.Name,
			Description: r.Description,
			Type:        r.Type,
			Field1:      r.Field1,
			Field2:      r.Field2,
			Condition:   r.Condition,
			Value:       r.Value,
			Enabled:     r.Enabled == nil || *r.Enabled,
		}
	}
	return rules
}
