package summarize

import (
	"context"
	"fmt"
	"log/slog"

	"docbrief/internal/dedup"
	"docbrief/internal/extract"
	"docbrief/internal/history"
	"docbrief/internal/model"
	"docbrief/internal/notify"
	"docbrief/internal/quota"
)

// Processor produces a summary for normalized input text. It must
// resolve or fail exactly once per invocation.
type Processor interface {
	Invoke(ctx context.Context, input string) (model.SummaryResult, error)
}

// QuotaExceededError reports a rejected request along with the quota
// state the caller should relay to the user.
type QuotaExceededError struct {
	Status model.QuotaStatus
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded, resets at %s", e.Status.ResetAt.Format("2006-01-02T15:04:05Z07:00"))
}

// UpstreamError marks a failure of the summarization backend, the one
// error class callers must handle besides quota rejection.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream summarization failed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Service struct {
	quota     *quota.Tracker
	dedup     *dedup.Cache
	history   *history.Store
	processor Processor
	notifier  notify.Notifier
	logger    *slog.Logger
	maxInput  int64
}

func NewService(tracker *quota.Tracker, dd *dedup.Cache, hist *history.Store, processor Processor, notifier notify.Notifier, maxInput int64, logger *slog.Logger) *Service {
	return &Service{
		quota:     tracker,
		dedup:     dd,
		history:   hist,
		processor: processor,
		notifier:  notifier,
		logger:    logger,
		maxInput:  maxInput,
	}
}

type Request struct {
	UserID  string
	Content []byte
}

// Summarize extracts text, gates on quota, coalesces through the dedup
// cache, records history and notifies. An empty UserID is the
// anonymous path: no quota consumed, no history written.
func (s *Service) Summarize(ctx context.Context, req Request) (model.SummaryResult, error) {
	text, err := extract.Extract(req.Content, s.maxInput)
	if err != nil {
		return model.SummaryResult{}, err
	}

	if req.UserID != "" {
		st := s.quota.CheckAndConsume(req.UserID)
		if !st.Allowed {
			return model.SummaryResult{}, &QuotaExceededError{Status: st}
		}
	}

	fp := dedup.Fingerprint(text)
	res, cached, err := s.dedup.Do(ctx, fp, func(ctx context.Context) (model.SummaryResult, error) {
		out, err := s.processor.Invoke(ctx, text)
		if err != nil {
			return model.SummaryResult{}, err
		}
		out.Fingerprint = fp
		out.InputChars = len(text)
		return out, nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("summarization failed", "user_id", req.UserID, "fingerprint", fp, "err", err)
		}
		if ctx.Err() != nil {
			return model.SummaryResult{}, err
		}
		return model.SummaryResult{}, &UpstreamError{Err: err}
	}
	res.Cached = cached

	if req.UserID != "" && s.history != nil {
		s.history.Append(req.UserID, res)
	}
	if s.notifier != nil {
		if err := s.notifier.Deliver(ctx, req.UserID, res.Summary); err != nil && s.logger != nil {
			s.logger.Warn("notify delivery failed", "user_id", req.UserID, "err", err)
		}
	}
	return res, nil
}
