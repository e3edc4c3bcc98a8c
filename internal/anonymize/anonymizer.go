package anonymize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/config"
	"datalens/internal/logx"
)

// Anonymizer detects sensitive columns and replaces their values with
// surrogates before anything leaves the process boundary
type Anonymizer struct {
	cfg    config.AnonymizeConfig
	rules  []Rule
	logger *logx.Logger
}

// NewAnonymizer creates an anonymizer, loading rule overrides from the
// configured YAML file when one is set
func NewAnonymizer(cfg config.AnonymizeConfig, logger *logx.Logger) (*Anonymizer, error) {
	rules := DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
		logger.Info("[Anonymizer] loaded %d pattern rules from %s", len(rules), cfg.RulesFile)
	}
	return &Anonymizer{cfg: cfg, rules: rules, logger: logger}, nil
}

// Result pairs the transformed dataset with its privacy report
type Result struct {
	Dataset *dataset.Dataset
	Privacy report.PrivacyReport
}

// Anonymize returns a transformed copy of the dataset. Surrogates are
// consistent within a single call (the same raw value always maps to
// the same surrogate) but intentionally vary across calls: the hash
// salt and identifier counter are scoped to the run.
func (a *Anonymizer) Anonymize(ds *dataset.Dataset, enabled bool) (*Result, error) {
	privacy := report.PrivacyReport{
		AnonymizationApplied: false,
		SensitiveColumns:     []string{},
		Methods:              map[string]report.ColumnAnonymization{},
		ComplianceStatus:     "not_applied",
		DataRetentionDays:    a.cfg.DataRetentionDays,
		ProcessingPurpose:    "statistical analysis and insight generation",
	}

	if !enabled {
		a.logger.Info("[Anonymizer] disabled for this request, passing data through")
		return &Result{Dataset: ds.Clone(), Privacy: privacy}, nil
	}

	run, err := newRun()
	if err != nil {
		return nil, err
	}

	out := ds.Clone()
	var lossSamples []float64

	for i := range out.Columns {
		col := &out.Columns[i]
		rule, ok := a.detect(col)
		if !ok {
			continue
		}

		before := columnProfile(col.Cells)
		run.transformColumn(col, rule)
		after := columnProfile(col.Cells)

		privacy.SensitiveColumns = append(privacy.SensitiveColumns, col.Name)
		privacy.Methods[col.Name] = report.ColumnAnonymization{
			Category: rule.Category,
			Method:   string(rule.Method),
		}
		lossSamples = append(lossSamples, dataLoss(before, after))
		a.logger.Info("[Anonymizer] column %q flagged as %s, applied %s",
			col.Name, rule.Category, rule.Method)
	}

	if len(privacy.SensitiveColumns) > 0 {
		privacy.AnonymizationApplied = true
		privacy.ComplianceStatus = "anonymized"
		privacy.DataLossEstimate = mean(lossSamples)
	} else {
		privacy.ComplianceStatus = "no_sensitive_data_detected"
	}

	return &Result{Dataset: out, Privacy: privacy}, nil
}

// detect returns the first rule (in priority order) whose keyword hits
// the column name or whose pattern matches at least the configured
// ratio of sampled cells
func (a *Anonymizer) detect(col *dataset.Column) (Rule, bool) {
	lowerName := strings.ToLower(col.Name)

	for _, rule := range a.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowerName, kw) {
				return rule, true
			}
		}
	}

	sample := sampleCells(col.Cells, a.cfg.SampleSize)
	if len(sample) == 0 {
		return Rule{}, false
	}
	for _, rule := range a.rules {
		if rule.Pattern == nil {
			continue
		}
		matched := 0
		for _, v := range sample {
			if rule.Pattern.MatchString(v) {
				matched++
			}
		}
		if float64(matched)/float64(len(sample)) >= a.cfg.MatchThreshold {
			return rule, true
		}
	}
	return Rule{}, false
}

// run holds per-call anonymization state
type run struct {
	salt  []byte
	idMap map[string]string
	next  int
}

func newRun() (*run, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return &run{salt: salt, idMap: make(map[string]string)}, nil
}

// transformColumn replaces every non-empty cell. Cells that do not
// match the rule's own pattern still get the salted hash so no raw
// value survives in a flagged column.
func (r *run) transformColumn(col *dataset.Column, rule Rule) {
	for i, v := range col.Cells {
		if v == "" {
			continue
		}
		col.Cells[i] = r.transform(v, rule)
	}
	col.Type = dataset.Text
}

func (r *run) transform(value string, rule Rule) string {
	switch rule.Method {
	case MethodIDMapping:
		return r.mapID(value)
	case MethodHash:
		return r.hash(value)
	default:
		if rule.Pattern != nil && rule.Pattern.MatchString(value) {
			return maskValue(value, rule.Category)
		}
		return r.hash(value)
	}
}

func (r *run) mapID(value string) string {
	if id, ok := r.idMap[value]; ok {
		return id
	}
	r.next++
	id := fmt.Sprintf("ID_%06d", r.next)
	r.idMap[value] = id
	return id
}

func (r *run) hash(value string) string {
	sum := sha256.Sum256(append(r.salt, []byte(value)...))
	return hex.EncodeToString(sum[:])[:8]
}

// maskValue applies the category-specific masking shape
func maskValue(value, category string) string {
	switch category {
	case CategoryEmail:
		return maskEmail(value)
	case CategoryPhone:
		return maskDigits(value, 2, 2)
	case CategoryCreditCard, CategoryIBAN:
		return maskDigits(value, 4, 4)
	case CategoryNationalID:
		return maskDigits(value, 3, 3)
	case CategoryIP:
		parts := strings.Split(value, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
		return maskAll(value)
	case CategoryMAC:
		sep := ":"
		if strings.Contains(value, "-") {
			sep = "-"
		}
		parts := strings.Split(value, sep)
		if len(parts) == 6 {
			return parts[0] + sep + parts[1] + sep + strings.Join([]string{"*", "*", "*", "*"}, sep)
		}
		return maskAll(value)
	default:
		return maskAll(value)
	}
}

// maskEmail keeps the first and last character of the local part and
// the top-level domain
func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return maskAll(value)
	}
	local, domain := value[:at], value[at+1:]

	var maskedLocal string
	if len(local) <= 2 {
		maskedLocal = strings.Repeat("*", len(local))
	} else {
		maskedLocal = local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:]
	}

	labels := strings.Split(domain, ".")
	if len(labels) >= 2 {
		labels[0] = strings.Repeat("*", len(labels[0]))
		domain = strings.Join(labels, ".")
	} else {
		domain = strings.Repeat("*", len(domain))
	}
	return maskedLocal + "@" + domain
}

// maskDigits keeps the first and last n digits, masking everything in
// between and preserving separators
func maskDigits(value string, keepFirst, keepLast int) string {
	digits := 0
	for _, c := range value {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	if digits <= keepFirst+keepLast {
		return maskAll(value)
	}

	var sb strings.Builder
	seen := 0
	for _, c := range value {
		if c < '0' || c > '9' {
			sb.WriteRune(c)
			continue
		}
		seen++
		if seen <= keepFirst || seen > digits-keepLast {
			sb.WriteRune(c)
		} else {
			sb.WriteRune('*')
		}
	}
	return sb.String()
}

func maskAll(value string) string {
	return strings.Repeat("*", len([]rune(value)))
}

// profile captures the measures the data-loss estimate needs
type profile struct {
	unique int
	avgLen float64
}

func columnProfile(cells []string) profile {
	seen := make(map[string]struct{})
	totalLen := 0
	n := 0
	for _, v := range cells {
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
		totalLen += len(v)
		n++
	}
	p := profile{unique: len(seen)}
	if n > 0 {
		p.avgLen = float64(totalLen) / float64(n)
	}
	return p
}

// dataLoss weighs cardinality loss at 0.7 and length loss at 0.3
func dataLoss(before, after profile) float64 {
	cardLoss := 0.0
	if before.unique > 0 {
		cardLoss = 1.0 - float64(after.unique)/float64(before.unique)
	}
	lenLoss := 0.0
	if before.avgLen > 0 {
		lenLoss = 1.0 - after.avgLen/before.avgLen
	}
	if cardLoss < 0 {
		cardLoss = 0
	}
	if lenLoss < 0 {
		lenLoss = 0
	}
	return 0.7*cardLoss + 0.3*lenLoss
}

func sampleCells(cells []string, max int) []string {
	var out []string
	for _, v := range cells {
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
