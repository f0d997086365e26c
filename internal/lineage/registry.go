package lineage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// Registry records source reports and their ingestion status.
type Registry struct {
	w   store.Writer
	log *zap.Logger
}

// NewRegistry returns a Registry writing through w, which may be the store
// itself or a caller's transaction.
func NewRegistry(w store.Writer) *Registry {
	return &Registry{
		w:   w,
		log: zap.L().With(zap.String("component", "lineage.registry")),
	}
}

// On returns a Registry bound to tx.
func (r *Registry) On(tx store.Tx) *Registry {
	return &Registry{w: tx, log: r.log}
}

// Register creates a source report in the registered state.
func (r *Registry) Register(ctx context.Context, src model.NewSource) (*model.SourceReport, error) {
	src.Filename = strings.TrimSpace(src.Filename)
	src.ReportType = strings.TrimSpace(src.ReportType)
	src.Locality = strings.TrimSpace(src.Locality)
	src.Period = strings.TrimSpace(src.Period)

	if src.Filename == "" {
		return nil, model.NewValidationError("filename", "required")
	}
	if src.ReportType == "" {
		return nil, model.NewValidationError("report_type", "required")
	}
	if src.PageCount < 0 {
		return nil, model.NewValidationError("page_count", "must not be negative, got %d", src.PageCount)
	}

	out, err := r.w.InsertSource(ctx, src)
	if err != nil {
		return nil, err
	}
	r.log.Info("source registered",
		zap.Int64("source_report_id", out.ID),
		zap.String("filename", out.Filename),
		zap.String("report_type", out.ReportType),
	)
	return out, nil
}

// MarkIngested moves a source to ingested. Repeating the call is a no-op.
func (r *Registry) MarkIngested(ctx context.Context, id int64) error {
	if err := r.w.SetSourceStatus(ctx, id, model.SourceStatusIngested, ""); err != nil {
		return err
	}
	r.log.Info("source ingested", zap.Int64("source_report_id", id))
	return nil
}

// MarkFailed moves a source to failed, recording reason.
func (r *Registry) MarkFailed(ctx context.Context, id int64, reason string) error {
	if err := r.w.SetSourceStatus(ctx, id, model.SourceStatusFailed, strings.TrimSpace(reason)); err != nil {
		return err
	}
	r.log.Warn("source failed", zap.Int64("source_report_id", id), zap.String("reason", reason))
	return nil
}

// Get returns the source with id or an UnknownSourceError.
func (r *Registry) Get(ctx context.Context, id int64) (*model.SourceReport, error) {
	src, err := r.w.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, &model.UnknownSourceError{ID: id}
	}
	return src, nil
}

// GetByFilename returns the source registered under filename, or nil.
func (r *Registry) GetByFilename(ctx context.Context, filename string) (*model.SourceReport, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, model.NewValidationError("filename", "required")
	}
	return r.w.GetSourceByFilename(ctx, filename)
}

// List returns sources matching filter, newest first.
func (r *Registry) List(ctx context.Context, filter store.SourceFilter) ([]model.SourceReport, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.NewValidationError("status", "unknown status %q", filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, model.NewValidationError("limit", "limit and offset must not be negative")
	}
	return r.w.ListSources(ctx, filter)
}
