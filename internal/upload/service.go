package upload

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"taskdesk/internal/platform/metrics"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
)

// Service runs the full upload flow: gate check at receipt, write to storage,
// and a second gate pass post-write before the artifact becomes servable. A
// failed post-write check deletes the stored file before the error returns.
type Service struct {
	gate    *Gate
	storage *DiskStorage
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	reports map[string]*Report
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(gate *Gate, storage *DiskStorage, opts ...Option) (*Service, error) {
	if gate == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "upload gate is required")
	}
	if storage == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "upload storage is required")
	}
	svc := &Service{
		gate:    gate,
		storage: storage,
		logger:  slog.Default(),
		reports: make(map[string]*Report),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Store validates, writes, re-validates, and records one report upload.
func (s *Service) Store(ctx context.Context, taskID, userID string, candidate Candidate, content io.Reader) (*Report, error) {
	if err := s.gate.ValidateMetadata(candidate); err != nil {
		s.recordRejection(ctx, candidate, err)
		return nil, toDomainError(err)
	}

	objectName, written, err := s.storage.Write(candidate.DeclaredName, content)
	if err != nil {
		return nil, err
	}

	// Defense in depth: re-check with the observed byte count before the
	// artifact is made servable. The declared size may have lied.
	post := candidate
	post.SizeBytes = written
	if err := s.gate.ValidateMetadata(post); err != nil {
		if delErr := s.storage.Delete(objectName); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to delete rejected upload",
				"object", objectName, "error", delErr)
		}
		s.recordRejection(ctx, post, err)
		return nil, toDomainError(err)
	}

	report := &Report{
		ID:           uuid.NewString(),
		TaskID:       taskID,
		UserID:       userID,
		DeclaredName: candidate.DeclaredName,
		ObjectName:   objectName,
		SizeBytes:    written,
		ContentType:  candidate.DeclaredMimeType,
		Status:       StatusUploaded,
		CreatedAt:    requestcontext.Now(ctx),
	}

	s.mu.Lock()
	s.reports[report.ID] = report
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "report stored",
		"report_id", report.ID,
		"task_id", taskID,
		"size_bytes", written,
		"log_type", "audit",
	)
	return report, nil
}

// Get returns report metadata by ID.
func (s *Service) Get(_ context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reports[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
}

// ListByTask returns all reports attached to a task.
func (s *Service) ListByTask(_ context.Context, taskID string) []*Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Report
	for _, r := range s.reports {
		if r.TaskID == taskID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// OpenContent returns a reader over a report's stored bytes.
func (s *Service) OpenContent(ctx context.Context, id string) (io.ReadCloser, *Report, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(r.ObjectName)
	if err != nil {
		return nil, nil, err
	}
	return rc, r, nil
}

func (s *Service) recordRejection(ctx context.Context, c Candidate, err error) {
	reason := "unknown"
	var re *RejectionError
	if reAs, ok := err.(*RejectionError); ok {
		re = reAs
		reason = string(re.Reason)
	}
	s.metrics.IncUploadRejection(reason)
	// The declared name is attacker input; it belongs in the server-side
	// log, not in the response.
	s.logger.WarnContext(ctx, "upload rejected",
		"reason", reason,
		"declared_name", c.DeclaredName,
		"declared_mime", c.DeclaredMimeType,
		"size_bytes", c.SizeBytes,
		"log_type", "audit",
	)
}

func toDomainError(err error) error {
	if re, ok := err.(*RejectionError); ok {
		return dErrors.New(dErrors.CodeUploadRejected, re.Message)
	}
	return dErrors.Wrap(err, dErrors.CodeUploadRejected, "upload rejected")
}
