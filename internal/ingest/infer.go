package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"datalens/domain/dataset"
)

// Common date patterns
var datePatterns = []*regexp.Regexp{
	// YYYY-MM-DD
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?)?$`),
	// MM/DD/YYYY, DD/MM/YYYY
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
	// DD-MM-YYYY, MM-DD-YYYY
	regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`),
	// YYYY/MM/DD
	regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`),
	// Month DD, YYYY
	regexp.MustCompile(`^[A-Za-z]{3,9} \d{1,2}, \d{4}$`),
	// DD Month YYYY
	regexp.MustCompile(`^\d{1,2} [A-Za-z]{3,9} \d{4}$`),
}

func isLikelyDate(value string) bool {
	for _, pattern := range datePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func isLikelyBoolean(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no", "y", "n":
		return true
	}
	return false
}

// inferColumnType infers a column type from its values, sampling the
// first 100 non-empty cells
func inferColumnType(cells []string) dataset.ColumnType {
	const sampleSize = 100

	numbers := 0
	dates := 0
	booleans := 0
	total := 0

	for _, value := range cells {
		if value == "" {
			continue
		}
		total++

		if isLikelyBoolean(value) {
			booleans++
		}
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			numbers++
		}
		if isLikelyDate(value) {
			dates++
		}

		if total >= sampleSize {
			break
		}
	}

	if total == 0 {
		return dataset.Unknown
	}
	if booleans == total {
		return dataset.Boolean
	}
	if dates > total/2 && numbers == 0 {
		return dataset.DateTime
	}
	if numbers == total {
		return dataset.Numeric
	}
	return dataset.Text
}
