package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/async"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/extract"
	"github.com/joseph-ayodele/labelscan/internal/llm"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
	"github.com/joseph-ayodele/labelscan/internal/repository"
)

// Config tunes the processor and its worker queue.
type Config struct {
	MaxUploadBytes int64
	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
}

type inflightKey struct {
	session string
	kind    async.Kind
}

type inflightOp struct {
	token  pipeline.Token
	cancel context.CancelFunc
}

// Processor coordinates OCR (image -> text) then LLM analysis (text -> result)
// for the sessions in the repository. Long-running steps run on the worker
// queue; their outcomes are applied to the session by token.
type Processor struct {
	logger      *zap.Logger
	sessions    repository.SessionRepository
	recognizer  extract.Recognizer
	analyzer    llm.Analyzer
	credentials llm.CredentialChecker
	queue       async.Queue
	maxUpload   int64

	mu       sync.Mutex
	inflight map[inflightKey]inflightOp
}

func NewProcessor(
	cfg Config,
	logger *zap.Logger,
	sessions repository.SessionRepository,
	recognizer extract.Recognizer,
	analyzer llm.Analyzer,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 15 << 20
	}
	p := &Processor{
		logger:     logger,
		sessions:   sessions,
		recognizer: recognizer,
		analyzer:   analyzer,
		maxUpload:  cfg.MaxUploadBytes,
		inflight:   make(map[inflightKey]inflightOp),
	}
	if cc, ok := analyzer.(llm.CredentialChecker); ok {
		p.credentials = cc
	}
	p.queue = async.NewProcessorQueue(p, logger,
		async.WithWorkers(cfg.Workers),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.JobTimeout),
	)
	return p
}

// Shutdown stops accepting jobs and waits for running ones.
func (p *Processor) Shutdown(ctx context.Context) {
	p.queue.Shutdown(ctx)
}

func (p *Processor) CreateSession(ctx context.Context, mode constants.Mode) (pipeline.Snapshot, error) {
	if !mode.Valid() {
		return pipeline.Snapshot{}, common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("unknown mode %q", mode), common.ErrInvalidInput)
	}
	return p.sessions.Create(ctx, mode)
}

func (p *Processor) Snapshot(ctx context.Context, id string) (pipeline.Snapshot, error) {
	return p.sessions.Get(ctx, id)
}

func (p *Processor) DeleteSession(ctx context.Context, id string) error {
	p.cancelInflight(id, async.KindRecognize, async.KindAnalyze)
	return p.sessions.Delete(ctx, id)
}

// Capture validates img and stores it on the session, abandoning whatever
// the session was doing with its previous image.
func (p *Processor) Capture(ctx context.Context, id string, img entity.Image) (pipeline.Snapshot, error) {
	if img.Empty() {
		return pipeline.Snapshot{}, common.NewAppError(common.CodeInvalidInput, "image is empty", common.ErrInvalidInput)
	}
	if int64(img.Size) > p.maxUpload {
		return pipeline.Snapshot{}, common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("image is %d bytes; the limit is %d", img.Size, p.maxUpload), common.ErrInvalidInput)
	}
	img.MIMEType = detectImageType(img)
	if !constants.IsAllowedImageType(img.MIMEType) {
		return pipeline.Snapshot{}, common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("unsupported image type %q", img.MIMEType), common.ErrInvalidInput)
	}

	p.cancelInflight(id, async.KindRecognize, async.KindAnalyze)
	snap, err := p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		return s.CaptureImage(img)
	})
	if err != nil {
		return snap, err
	}
	p.logger.Info("processor.capture.ok",
		zap.String("session_id", id),
		zap.String("source", img.Source),
		zap.String("mime", img.MIMEType),
		zap.Int("bytes", img.Size),
		zap.String("sha256", img.SHA256))
	return snap, nil
}

// detectImageType trusts a declared image type, then the file content, then
// the file extension (HEIC has no signature net/http knows).
func detectImageType(img entity.Image) string {
	declared := constants.NormalizeMIME(img.MIMEType)
	if constants.IsAllowedImageType(declared) {
		return declared
	}
	sniffed := constants.NormalizeMIME(http.DetectContentType(img.Data))
	if constants.IsAllowedImageType(sniffed) {
		return sniffed
	}
	if byExt, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(img.Filename))]; ok {
		return byExt
	}
	if declared != "" {
		return declared
	}
	return sniffed
}

// StartExtraction begins text recognition on the captured image. Progress
// and the outcome are applied to the session as the job runs.
func (p *Processor) StartExtraction(ctx context.Context, id string) (pipeline.Snapshot, error) {
	var tok pipeline.Token
	snap, err := p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		t, _, err := s.BeginRecognition()
		tok = t
		return err
	})
	if err != nil {
		return snap, err
	}
	return p.enqueue(ctx, id, async.KindRecognize, tok, snap)
}

func (p *Processor) EditText(ctx context.Context, id, text string) (pipeline.Snapshot, error) {
	return p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		return s.EditText(text)
	})
}

func (p *Processor) ChangeMode(ctx context.Context, id string, mode constants.Mode) (pipeline.Snapshot, error) {
	return p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		return s.ChangeMode(mode)
	})
}

func (p *Processor) ClearError(ctx context.Context, id string) (pipeline.Snapshot, error) {
	return p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		s.ClearError()
		return nil
	})
}

func (p *Processor) ReportError(ctx context.Context, id, message string) (pipeline.Snapshot, error) {
	return p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		s.ReportError(message)
		return nil
	})
}

// StartAnalysis submits the edited text for analysis in the session's mode.
// A missing API key is reported right away without touching the network.
func (p *Processor) StartAnalysis(ctx context.Context, id string) (pipeline.Snapshot, error) {
	var tok pipeline.Token
	var mode constants.Mode
	snap, err := p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		if p.credentials != nil && s.Stage() == constants.StageAnalyze {
			if err := p.credentials.CheckCredentials(); err != nil {
				s.ReportErr(err)
				return err
			}
		}
		t, in, err := s.BeginAnalysis()
		tok, mode = t, in.Mode
		return err
	})
	if errors.Is(err, common.ErrAuthMissing) {
		p.logger.Warn("processor.analyze.auth_missing", zap.String("session_id", id))
	}
	if err != nil {
		return snap, err
	}
	p.logger.Info("processor.analyze.queued", zap.String("session_id", id), zap.String("mode", string(mode)))
	return p.enqueue(ctx, id, async.KindAnalyze, tok, snap)
}

// Reset abandons in-flight work and returns the session to upload.
func (p *Processor) Reset(ctx context.Context, id string) (pipeline.Snapshot, error) {
	p.cancelInflight(id, async.KindRecognize, async.KindAnalyze)
	return p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
		s.Reset()
		return nil
	})
}

func (p *Processor) enqueue(ctx context.Context, id string, kind async.Kind, tok pipeline.Token, snap pipeline.Snapshot) (pipeline.Snapshot, error) {
	job := async.Job{
		SessionID:   id,
		Kind:        kind,
		Token:       tok,
		SubmittedAt: time.Now(),
		TraceID:     common.RequestIDFromContext(ctx),
	}
	if job.TraceID == "" {
		job.TraceID = uuid.New().String()
	}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		failed, _ := p.sessions.Update(ctx, id, func(s *pipeline.Session) error {
			if kind == async.KindRecognize {
				return s.FailRecognition(tok, err)
			}
			return s.FailAnalysis(tok, err)
		})
		return failed, err
	}
	return snap, nil
}

// Handle runs one queued job. It implements async.Handler. A panicking
// adapter fails the job on its session like any other adapter error.
func (p *Processor) Handle(ctx context.Context, job async.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = p.failPanicked(job, r)
		}
	}()

	switch job.Kind {
	case async.KindRecognize:
		return p.runRecognition(ctx, job)
	case async.KindAnalyze:
		return p.runAnalysis(ctx, job)
	default:
		return common.NewAppError(common.CodeInternal, fmt.Sprintf("unknown job kind %q", job.Kind), common.ErrInternal)
	}
}

func (p *Processor) runRecognition(ctx context.Context, job async.Job) error {
	var img entity.Image
	if _, err := p.sessions.Update(ctx, job.SessionID, func(s *pipeline.Session) error {
		var err error
		img, err = s.PendingRecognition(job.Token)
		return err
	}); err != nil {
		return p.skipped(job, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.track(job, cancel)
	defer p.untrack(job)

	start := time.Now()
	var final *extract.Event
	for ev := range p.recognizer.Recognize(ctx, img) {
		if ev.Done {
			final = &ev
			continue
		}
		_, _ = p.sessions.Update(ctx, job.SessionID, func(s *pipeline.Session) error {
			s.RecordProgress(job.Token, ev.Progress)
			return nil
		})
	}

	// the request context may be gone; session updates use a fresh one
	bg := context.WithoutCancel(ctx)
	if final == nil {
		err := common.NewAppError(common.CodeRecognitionFailed,
			common.UserMessage(common.ErrRecognitionFailed),
			fmt.Errorf("%w: %w", common.ErrRecognitionFailed, ctx.Err()))
		_, uerr := p.sessions.Update(bg, job.SessionID, func(s *pipeline.Session) error {
			return s.FailRecognition(job.Token, err)
		})
		if uerr != nil {
			return p.skipped(job, uerr)
		}
		return err
	}
	if final.Err != nil {
		_, uerr := p.sessions.Update(bg, job.SessionID, func(s *pipeline.Session) error {
			return s.FailRecognition(job.Token, final.Err)
		})
		if uerr != nil {
			return p.skipped(job, uerr)
		}
		p.logger.Error("processor.ocr.failed", zap.String("session_id", job.SessionID), zap.Error(final.Err))
		return final.Err
	}

	_, err := p.sessions.Update(bg, job.SessionID, func(s *pipeline.Session) error {
		return s.CompleteRecognition(job.Token, final.Text, final.Confidence)
	})
	if errors.Is(err, common.ErrStaleResponse) || errors.Is(err, common.ErrNotFound) {
		return p.skipped(job, err)
	}
	if err != nil {
		p.logger.Warn("processor.ocr.empty", zap.String("session_id", job.SessionID), zap.Error(err))
		return err
	}
	p.logger.Info("processor.ocr.ok",
		zap.String("session_id", job.SessionID),
		zap.Int("chars", len(final.Text)),
		zap.Float32("confidence", final.Confidence),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nil
}

func (p *Processor) runAnalysis(ctx context.Context, job async.Job) error {
	var in pipeline.AnalysisInput
	if _, err := p.sessions.Update(ctx, job.SessionID, func(s *pipeline.Session) error {
		var err error
		in, err = s.PendingAnalysis(job.Token)
		return err
	}); err != nil {
		return p.skipped(job, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.track(job, cancel)
	defer p.untrack(job)

	start := time.Now()
	result, err := p.analyze(ctx, in)
	bg := context.WithoutCancel(ctx)
	if err != nil {
		_, uerr := p.sessions.Update(bg, job.SessionID, func(s *pipeline.Session) error {
			return s.FailAnalysis(job.Token, err)
		})
		if uerr != nil {
			return p.skipped(job, uerr)
		}
		p.logger.Error("processor.analyze.failed",
			zap.String("session_id", job.SessionID),
			zap.String("code", common.Code(err)),
			zap.Error(err))
		return err
	}

	_, err = p.sessions.Update(bg, job.SessionID, func(s *pipeline.Session) error {
		return s.CompleteAnalysis(job.Token, result)
	})
	if errors.Is(err, common.ErrStaleResponse) || errors.Is(err, common.ErrNotFound) {
		return p.skipped(job, err)
	}
	if err != nil {
		p.logger.Warn("processor.analyze.empty", zap.String("session_id", job.SessionID), zap.Error(err))
		return err
	}
	p.logger.Info("processor.analyze.ok",
		zap.String("session_id", job.SessionID),
		zap.String("mode", string(in.Mode)),
		zap.Int("health_score", result.HealthScore),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nil
}

func (p *Processor) failPanicked(job async.Job, r any) error {
	p.logger.Error("processor.job.panic",
		zap.String("session_id", job.SessionID),
		zap.String("kind", string(job.Kind)),
		zap.Any("panic", r),
		zap.Stack("stack"))

	var err error
	fail := func(s *pipeline.Session) error { return s.FailAnalysis(job.Token, err) }
	if job.Kind == async.KindRecognize {
		err = common.NewAppError(common.CodeRecognitionFailed,
			common.UserMessage(common.ErrRecognitionFailed),
			fmt.Errorf("%w: panic: %v", common.ErrRecognitionFailed, r))
		fail = func(s *pipeline.Session) error { return s.FailRecognition(job.Token, err) }
	} else {
		err = common.NewAppError(common.CodeRequestFailed, "analysis stopped unexpectedly",
			fmt.Errorf("%w: panic: %v", common.ErrRequestFailed, r))
	}
	if _, uerr := p.sessions.Update(context.Background(), job.SessionID, fail); uerr != nil {
		return p.skipped(job, uerr)
	}
	return err
}

// analyze is the synchronous analysis step: prompt, submit, parse.
func (p *Processor) analyze(ctx context.Context, in pipeline.AnalysisInput) (*llm.AnalysisResult, error) {
	prompt := llm.BuildPrompt(in.Text, in.Mode)
	raw, err := p.analyzer.Submit(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result, err := llm.ParseAnalysisWithLogger(raw, in.Mode, p.logger)
	if err != nil {
		return nil, err
	}
	if cerr := llm.CheckConformance(in.Mode, []byte(llm.LocateJSON(raw))); cerr != nil {
		p.logger.Warn("processor.analyze.schema_drift", zap.String("mode", string(in.Mode)), zap.Error(cerr))
	}
	return result, nil
}

// skipped absorbs the errors of a job whose session moved on.
func (p *Processor) skipped(job async.Job, err error) error {
	if errors.Is(err, common.ErrStaleResponse) || errors.Is(err, common.ErrNotFound) {
		p.logger.Debug("processor.job.discarded",
			zap.String("session_id", job.SessionID),
			zap.String("kind", string(job.Kind)),
			zap.Uint64("token", uint64(job.Token)),
			zap.String("reason", common.Code(err)))
		return nil
	}
	return err
}

func (p *Processor) track(job async.Job, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[inflightKey{job.SessionID, job.Kind}] = inflightOp{token: job.Token, cancel: cancel}
}

func (p *Processor) untrack(job async.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := inflightKey{job.SessionID, job.Kind}
	if op, ok := p.inflight[key]; ok && op.token == job.Token {
		delete(p.inflight, key)
	}
}

func (p *Processor) cancelInflight(id string, kinds ...async.Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range kinds {
		key := inflightKey{id, k}
		if op, ok := p.inflight[key]; ok {
			op.cancel()
			delete(p.inflight, key)
			p.logger.Debug("processor.job.cancelled",
				zap.String("session_id", id),
				zap.String("kind", string(k)),
				zap.Uint64("token", uint64(op.token)))
		}
	}
}
