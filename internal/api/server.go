package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"

	"datalens/domain/report"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/internal/logx"
	"datalens/internal/pipeline"
	"datalens/internal/validate"
)

// Server exposes the analysis pipeline over HTTP
type Server struct {
	engine   *gin.Engine
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	logger   *logx.Logger
}

// NewServer wires the routes onto a gin engine
func NewServer(cfg *config.Config, p *pipeline.Pipeline, logger *logx.Logger) *Server {
	gin.SetMode(cfg.Server.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.Limits.MaxFileSize

	s := &Server{engine: engine, pipeline: p, cfg: cfg, logger: logger}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/capabilities", s.handleCapabilities)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/validate", s.handleValidate)
}

// Run starts the server on the configured port
func (s *Server) Run() error {
	addr := ":" + s.cfg.Server.Port
	s.logger.Info("[Server] listening on %s", addr)
	return s.engine.Run(addr)
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCapabilities(c *gin.Context) {
	chartTypes := make([]string, 0)
	for _, t := range report.ChartTypes() {
		chartTypes = append(chartTypes, string(t))
	}
	c.JSON(http.StatusOK, gin.H{
		"supported_formats": []string{"csv", "xlsx"},
		"analysis_types":    []string{"general", "trends", "correlations", "predictions", "statistical"},
		"chart_types":       chartTypes,
		"max_file_size":     s.cfg.Limits.MaxFileSize,
		"max_charts":        s.cfg.Limits.MaxCharts,
		"question_length":   gin.H{"min": s.cfg.Limits.QuestionMinLength, "max": s.cfg.Limits.QuestionMaxLength},
		"privacy": gin.H{
			"anonymization_default": s.cfg.Anonymize.EnabledByDefault,
			"data_retention_days":   s.cfg.Anonymize.DataRetentionDays,
		},
		"model": s.cfg.AI.OpenAIModel,
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		s.renderError(c, errors.ValidationError("request is not valid multipart form data"))
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		s.renderError(c, errors.ValidationError("no files uploaded, expected form field \"files\""))
		return
	}

	question := c.PostForm("question")
	analysisType, err := report.ParseAnalysisType(c.PostForm("analysis_type"))
	if err != nil {
		s.renderError(c, errors.ValidationError(err.Error()))
		return
	}
	includeCharts := parseBoolDefault(c.PostForm("include_charts"), true)
	var anonymizeData *bool
	if v := c.PostForm("anonymize_data"); v != "" {
		b := parseBoolDefault(v, true)
		anonymizeData = &b
	}

	uploads := make([]validate.Upload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh)
		if err != nil {
			s.renderError(c, errors.ValidationError("failed to read uploaded file "+fh.Filename))
			return
		}
		uploads = append(uploads, upload)
	}

	if len(uploads) == 1 {
		rep, err := s.pipeline.Analyze(c.Request.Context(), pipeline.Request{
			Upload:        uploads[0],
			Question:      question,
			AnalysisType:  analysisType,
			IncludeCharts: includeCharts,
			Anonymize:     anonymizeData,
		})
		if err != nil {
			s.renderError(c, err)
			return
		}
		renderSummaryHTML(rep)
		c.JSON(http.StatusOK, rep)
		return
	}

	batch, err := s.pipeline.AnalyzeBatch(c.Request.Context(), uploads, question, analysisType, includeCharts, anonymizeData)
	if err != nil {
		s.renderError(c, err)
		return
	}
	for i := range batch.Outcomes {
		if batch.Outcomes[i].Report != nil {
			renderSummaryHTML(batch.Outcomes[i].Report)
		}
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleValidate(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("files")
	}
	if err != nil {
		s.renderError(c, errors.ValidationError("no file uploaded, expected form field \"file\""))
		return
	}
	upload, err := readUpload(fh)
	if err != nil {
		s.renderError(c, errors.ValidationError("failed to read uploaded file"))
		return
	}

	preview, err := s.pipeline.Validate(upload, c.PostForm("question"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// renderSummaryHTML adds the markdown-rendered narrative for UI
// consumers alongside the plain text
func renderSummaryHTML(rep *report.AnalysisReport) {
	if rep.Summary == "" {
		return
	}
	rep.SummaryHTML = string(markdown.ToHTML([]byte(rep.Summary), nil, nil))
}

func (s *Server) renderError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeValidationError, errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeAssembly:
		status = http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("[Server] %s: %v", code, err)
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
}

func readUpload(fh *multipart.FileHeader) (validate.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return validate.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return validate.Upload{}, err
	}
	return validate.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func parseBoolDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}
