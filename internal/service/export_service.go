package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/pkg/export"
	"github.com/edubase/center-ops-api/pkg/storage"
)

type timelineReporter interface {
	Report(ctx context.Context, studentID, classID string) (*models.ClassTimeline, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders a student's attendance timeline to CSV or PDF and
// persists the file with a signed download token.
type ExportService struct {
	timeline timelineReporter
	students studentReader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(timeline timelineReporter, students studentReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		timeline: timeline,
		students: students,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the attendance dataset for the job and stores the rendered
// export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// SignPath issues a fresh download token for an already-stored file.
func (s *ExportService) SignPath(jobID, relPath string) (string, time.Time, error) {
	return s.signer.Generate(jobID, relPath)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	ext := strings.ToLower(string(job.Format))
	return fmt.Sprintf("attendance_%s_%s_%s.%s",
		sanitizeFilename(job.StudentID), sanitizeFilename(job.ClassID), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	timeline, err := s.timeline.Report(ctx, job.StudentID, job.ClassID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	studentName := job.StudentID
	if student, err := s.students.GetByID(ctx, job.StudentID); err == nil {
		studentName = student.FullName
	}

	headers := []string{"Session", "Date", "Outcome", "Makeup"}
	rows := make([]map[string]string, 0, len(timeline.Entries)+1)
	for _, entry := range timeline.Entries {
		makeup := ""
		if entry.IsMakeup {
			makeup = "yes"
		}
		rows = append(rows, map[string]string{
			"Session": fmt.Sprintf("%d", entry.SessionSeq),
			"Date":    entry.SessionDate.Format("2006-01-02"),
			"Outcome": string(entry.Outcome),
			"Makeup":  makeup,
		})
	}
	rows = append(rows, map[string]string{
		"Session": "Total",
		"Date":    fmt.Sprintf("%d sessions", timeline.Summary.TotalSessions),
		"Outcome": fmt.Sprintf("%.1f%% attendance", 100*timeline.Summary.AttendanceRate),
		"Makeup":  "",
	})

	title := fmt.Sprintf("Attendance Report: %s / %s", studentName, timeline.ClassName)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}
