package anonymize

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Method identifies how a flagged column is transformed
type Method string

const (
	MethodMask      Method = "mask"
	MethodHash      Method = "hash"
	MethodIDMapping Method = "id_mapping"
)

// Sensitive data categories
const (
	CategoryCreditCard = "credit_card"
	CategoryIBAN       = "iban"
	CategoryEmail      = "email"
	CategoryPhone      = "phone"
	CategoryNationalID = "national_id"
	CategoryIP         = "ip_address"
	CategoryMAC        = "mac_address"
	CategoryPostalCode = "postal_code"
	CategoryName       = "person_name"
	CategoryAddress    = "address"
	CategorySecret     = "secret"
)

// Rule pairs a detection pattern with its transformation. Lower
// priority values are checked first, so specific patterns win over
// broad ones.
type Rule struct {
	Category string
	Method   Method
	Pattern  *regexp.Regexp
	Keywords []string
	Priority int
}

// DefaultRules returns the built-in detection rules, most specific
// first
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryCreditCard,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}$`),
			Keywords: []string{"card", "credit", "cc_num"},
			Priority: 1,
		},
		{
			Category: CategoryIBAN,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`),
			Keywords: []string{"iban"},
			Priority: 2,
		},
		{
			Category: CategoryEmail,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`),
			Keywords: []string{"email", "e-mail", "mail"},
			Priority: 3,
		},
		{
			Category: CategoryPhone,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^\+?[\d\s\-().]{7,20}$`),
			Keywords: []string{"phone", "mobile", "tel", "fax"},
			Priority: 4,
		},
		{
			Category: CategoryNationalID,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^\d{3}-?\d{2}-?\d{4}$`),
			Keywords: []string{"ssn", "social_security", "national_id", "tax_id", "passport"},
			Priority: 5,
		},
		{
			Category: CategoryIP,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`),
			Keywords: []string{"ip_address", "ip_addr"},
			Priority: 6,
		},
		{
			Category: CategoryMAC,
			Method:   MethodMask,
			Pattern:  regexp.MustCompile(`^([0-9A-Fa-f]{2}[:\-]){5}[0-9A-Fa-f]{2}$`),
			Keywords: []string{"mac_address", "mac_addr"},
			Priority: 7,
		},
		{
			Category: CategoryPostalCode,
			Method:   MethodHash,
			Pattern:  regexp.MustCompile(`^\d{5}(-\d{4})?$`),
			Keywords: []string{"zip", "postal", "postcode"},
			Priority: 8,
		},
		{
			Category: CategoryName,
			Method:   MethodIDMapping,
			Keywords: []string{"name", "first_name", "last_name", "full_name", "surname", "customer", "employee", "patient", "user"},
			Priority: 9,
		},
		{
			Category: CategoryAddress,
			Method:   MethodHash,
			Keywords: []string{"address", "street"},
			Priority: 10,
		},
		{
			Category: CategorySecret,
			Method:   MethodHash,
			Keywords: []string{"password", "secret", "token", "api_key"},
			Priority: 11,
		},
	}
}

// ruleFile is the YAML override document shape
type ruleFile struct {
	Rules []struct {
		Category string   `yaml:"category"`
		Method   string   `yaml:"method"`
		Pattern  string   `yaml:"pattern"`
		Keywords []string `yaml:"keywords"`
		Priority int      `yaml:"priority"`
	} `yaml:"rules"`
}

// LoadRules reads detection rules from a YAML file, replacing the
// defaults entirely
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var doc ruleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		method := Method(r.Method)
		switch method {
		case MethodMask, MethodHash, MethodIDMapping:
		default:
			return nil, fmt.Errorf("rule %d: unknown method %q", i, r.Method)
		}
		rule := Rule{
			Category: r.Category,
			Method:   method,
			Keywords: r.Keywords,
			Priority: r.Priority,
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): invalid pattern: %w", i, r.Category, err)
			}
			rule.Pattern = re
		}
		rules = append(rules, rule)
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules, nil
}
