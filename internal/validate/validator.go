package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"datalens/adapters/excel"
	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/internal/ingest"
	"datalens/internal/logx"
)

// Format identifies a supported upload format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Browsers and multipart writers often fall back to octet-stream, so
// the extension is the primary signal and the MIME check only rejects
// clearly wrong types
var allowedCSVMIMEs = map[string]struct{}{
	"text/csv":                 {},
	"application/csv":          {},
	"text/plain":               {},
	"application/vnd.ms-excel": {},
	"application/octet-stream": {},
}

var allowedXLSXMIMEs = map[string]struct{}{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/octet-stream":                                          {},
}

// Upload carries one uploaded file through validation
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Validator checks uploads and questions against configured limits
// and parses accepted files into datasets
type Validator struct {
	cfg    *config.Config
	excel  *excel.Reader
	logger *logx.Logger
}

// NewValidator creates a validator bound to the given configuration
func NewValidator(cfg *config.Config, logger *logx.Logger) *Validator {
	return &Validator{cfg: cfg, excel: excel.NewReader(), logger: logger}
}

// Validate runs all checks in order and parses the upload. Cheap
// checks (size, format, question bounds) run before any parsing so a
// bad question never pays the parse cost.
func (v *Validator) Validate(upload Upload, question string) (*dataset.Dataset, error) {
	if err := v.checkSize(upload); err != nil {
		return nil, err
	}
	format, err := v.detectFormat(upload)
	if err != nil {
		return nil, err
	}
	if err := v.CheckQuestion(question); err != nil {
		return nil, err
	}

	ds, err := v.parse(upload, format)
	if err != nil {
		return nil, errors.WithCode(errors.CodeValidationError,
			errors.Wrapf(err, "failed to parse %s", upload.FileName))
	}
	v.logger.Debug("[Validator] %s: %d rows, %d columns, %d malformed",
		upload.FileName, ds.RowCount, len(ds.Columns), ds.MalformedRows)
	return ds, nil
}

// CheckQuestion enforces the configured question length bounds
func (v *Validator) CheckQuestion(question string) error {
	q := strings.TrimSpace(question)
	n := len([]rune(q))
	if n < v.cfg.Limits.QuestionMinLength {
		return errors.ValidationError(fmt.Sprintf(
			"question must be at least %d characters, got %d",
			v.cfg.Limits.QuestionMinLength, n))
	}
	if n > v.cfg.Limits.QuestionMaxLength {
		return errors.ValidationError(fmt.Sprintf(
			"question must be at most %d characters, got %d",
			v.cfg.Limits.QuestionMaxLength, n))
	}
	return nil
}

// Preview runs validation only and reports what a full analysis would
// cost, without invoking any downstream stage
func (v *Validator) Preview(upload Upload, question string) (*report.ValidationPreview, error) {
	ds, err := v.Validate(upload, question)
	if err != nil {
		return nil, err
	}

	cells := ds.RowCount * len(ds.Columns)
	preview := &report.ValidationPreview{
		Valid:             true,
		FileName:          upload.FileName,
		RowCount:          ds.RowCount,
		ColumnCount:       len(ds.Columns),
		Columns:           ds.ColumnNames(),
		MalformedRows:     ds.MalformedRows,
		EstimatedCostUSD:  float64(cells) * v.cfg.Limits.CostPerCellUSD,
		QuestionCharCount: len([]rune(strings.TrimSpace(question))),
	}
	if ds.MalformedRows > 0 {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("%d malformed rows will be skipped", ds.MalformedRows))
	}
	return preview, nil
}

func (v *Validator) checkSize(upload Upload) error {
	if len(upload.Data) == 0 {
		return errors.ValidationError("uploaded file is empty")
	}
	if int64(len(upload.Data)) > v.cfg.Limits.MaxFileSize {
		return errors.ValidationError(fmt.Sprintf(
			"file %s exceeds maximum size of %d bytes",
			upload.FileName, v.cfg.Limits.MaxFileSize))
	}
	return nil
}

func (v *Validator) detectFormat(upload Upload) (Format, error) {
	ext := strings.ToLower(filepath.Ext(upload.FileName))
	mime := strings.ToLower(strings.TrimSpace(strings.Split(upload.ContentType, ";")[0]))

	switch ext {
	case ".csv", ".txt":
		if mime != "" {
			if _, ok := allowedCSVMIMEs[mime]; !ok {
				return "", errors.ValidationError(fmt.Sprintf(
					"unsupported content type %q for %s", mime, upload.FileName))
			}
		}
		return FormatCSV, nil
	case ".xlsx":
		if mime != "" {
			if _, ok := allowedXLSXMIMEs[mime]; !ok {
				return "", errors.ValidationError(fmt.Sprintf(
					"unsupported content type %q for %s", mime, upload.FileName))
			}
		}
		return FormatXLSX, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf(
			"unsupported file format %q, expected .csv or .xlsx", ext))
	}
}

func (v *Validator) parse(upload Upload, format Format) (*dataset.Dataset, error) {
	switch format {
	case FormatXLSX:
		return v.excel.Read(upload.FileName, upload.Data)
	default:
		return ingest.ParseCSV(upload.FileName, upload.Data)
	}
}
