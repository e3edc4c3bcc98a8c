package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/internal/logx"
)

func testConfig() *config.Config {
	return &config.Config{
		Limits: config.LimitConfig{
			MaxFileSize:       1024,
			QuestionMinLength: 10,
			QuestionMaxLength: 1000,
			CostPerCellUSD:    0.0000005,
		},
	}
}

func testValidator() *Validator {
	return NewValidator(testConfig(), logx.NewLogger(logx.LogLevelError))
}

const goodQuestion = "What trends are visible in this data?"

func csvUpload(body string) Upload {
	return Upload{FileName: "data.csv", ContentType: "text/csv", Data: []byte(body)}
}

func TestValidateAcceptsGoodUpload(t *testing.T) {
	v := testValidator()

	ds, err := v.Validate(csvUpload("a,b\n1,2\n3,4\n"), goodQuestion)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowCount)
}

func TestValidateQuestionBounds(t *testing.T) {
	v := testValidator()
	upload := csvUpload("a,b\n1,2\n")

	tests := []struct {
		name     string
		question string
		wantErr  bool
	}{
		{"too short", "why?", true},
		{"exactly min", strings.Repeat("x", 10), false},
		{"too long", strings.Repeat("x", 1001), true},
		{"exactly max", strings.Repeat("x", 1000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(upload, tt.question)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateQuestionCheckedBeforeParse(t *testing.T) {
	v := testValidator()
	// The file body is garbage; a short question must still produce
	// the question error, proving no parse was attempted
	upload := csvUpload("\"unterminated")

	_, err := v.Validate(upload, "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question must be at least")
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	v := testValidator()
	upload := csvUpload(strings.Repeat("x", 2048))

	_, err := v.Validate(upload, goodQuestion)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	v := testValidator()

	_, err := v.Validate(csvUpload(""), goodQuestion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestValidateFormatDetection(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name        string
		fileName    string
		contentType string
		wantErr     bool
	}{
		{"csv extension", "data.csv", "text/csv", false},
		{"csv no content type", "data.csv", "", false},
		{"txt as csv", "data.txt", "text/plain", false},
		{"csv wrong mime", "data.csv", "image/png", true},
		{"unsupported extension", "data.parquet", "", true},
		{"json rejected", "data.json", "application/json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := Upload{FileName: tt.fileName, ContentType: tt.contentType, Data: []byte("a,b\n1,2\n")}
			_, err := v.Validate(upload, goodQuestion)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	v := testValidator()

	preview, err := v.Preview(csvUpload("a,b\n1,2\n3,4\n5,6\n"), goodQuestion)
	require.NoError(t, err)

	assert.True(t, preview.Valid)
	assert.Equal(t, 3, preview.RowCount)
	assert.Equal(t, 2, preview.ColumnCount)
	assert.Equal(t, []string{"a", "b"}, preview.Columns)
	assert.InDelta(t, 6*0.0000005, preview.EstimatedCostUSD, 1e-12)
}

func TestPreviewWarnsOnMalformedRows(t *testing.T) {
	v := testValidator()

	preview, err := v.Preview(csvUpload("a,b\n1,2\n3\n"), goodQuestion)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.MalformedRows)
	require.Len(t, preview.Warnings, 1)
	assert.Contains(t, preview.Warnings[0], "malformed")
}
