package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

type catalogLoader interface {
	LoadSnapshot(ctx context.Context, scope scheduler.Scope) (*scheduler.Catalog, error)
}

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	ListByScope(ctx context.Context, scope scheduler.Scope) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, scope scheduler.Scope, exceptID string) (int64, error)
}

type timetableEntryRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableEntry, error)
}

type proposalCache interface {
	Get(ctx context.Context, id string) (*models.TimetableProposal, error)
	Save(ctx context.Context, proposal *models.TimetableProposal, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
	Tracker() *jobs.Tracker
}

// TimetableGeneratorConfig governs generator behaviour.
type TimetableGeneratorConfig struct {
	ProposalTTL     time.Duration
	RunTimeout      time.Duration
	Bounds          scheduler.DurationBounds
	OnePerDay       bool
	MaxParallelRuns int
}

// GenerateJobType labels asynchronous generation jobs.
const GenerateJobType = "timetable.generate"

// TimetableGeneratorService runs the scheduling engine against stored catalogs and persists
// the resulting timetables.
type TimetableGeneratorService struct {
	catalog   catalogLoader
	timetable timetableRepository
	entries   timetableEntryRepository
	proposals proposalCache
	tx        txProvider
	queue     jobQueue
	reports   *ExportService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableGeneratorConfig
	now       func() time.Time
}

// NewTimetableGeneratorService wires generator dependencies. A nil proposal cache keeps
// proposals in process memory.
func NewTimetableGeneratorService(
	catalog catalogLoader,
	timetable timetableRepository,
	entries timetableEntryRepository,
	proposals proposalCache,
	tx txProvider,
	reports *ExportService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableGeneratorConfig,
) *TimetableGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	if cfg.MaxParallelRuns <= 0 {
		cfg.MaxParallelRuns = 4
	}
	if proposals == nil {
		proposals = newProposalStore()
	}
	if reports == nil {
		reports = NewExportService(nil, nil)
	}
	return &TimetableGeneratorService{
		catalog:   catalog,
		timetable: timetable,
		entries:   entries,
		proposals: proposals,
		tx:        tx,
		reports:   reports,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AttachQueue enables asynchronous generation.
func (s *TimetableGeneratorService) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// Generate builds a proposal for one scope and keeps it for later saving.
func (s *TimetableGeneratorService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposalResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	proposal, err := s.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := s.toProposalResponse(proposal)
	return &resp, nil
}

// GenerateMany runs isolated generations in parallel. Responses keep request order and the
// first failure cancels the remaining runs.
func (s *TimetableGeneratorService) GenerateMany(ctx context.Context, req dto.GenerateBatchRequest) (*dto.GenerateBatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch generation payload")
	}

	proposals := make([]*models.TimetableProposal, len(req.Requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelRuns)
	for i, item := range req.Requests {
		i, item := i, item
		g.Go(func() error {
			proposal, err := s.generate(gctx, item)
			if err != nil {
				return err
			}
			proposals[i] = proposal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &dto.GenerateBatchResponse{Proposals: make([]dto.TimetableProposalResponse, 0, len(proposals))}
	for _, proposal := range proposals {
		resp.Proposals = append(resp.Proposals, s.toProposalResponse(proposal))
	}
	return resp, nil
}

// Enqueue schedules a generation on the background queue.
func (s *TimetableGeneratorService) Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableJobResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "asynchronous generation is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}

	job := jobs.Job{ID: uuid.NewString(), Type: GenerateJobType, Payload: req}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue is full")
	}
	s.logger.Info("timetable generation queued", zap.String("job_id", job.ID), zap.String("scope", req.Scope().Key()))

	record, ok := s.queue.Tracker().Get(job.ID)
	if !ok {
		return &dto.TimetableJobResponse{JobID: job.ID, Status: jobs.StatusQueued, EnqueuedAt: s.now()}, nil
	}
	resp := toJobResponse(record)
	return &resp, nil
}

// Job reports the progress of an asynchronous generation.
func (s *TimetableGeneratorService) Job(_ context.Context, id string) (*dto.TimetableJobResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "asynchronous generation is disabled")
	}
	record, ok := s.queue.Tracker().Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	resp := toJobResponse(record)
	return &resp, nil
}

// HandleJob is the queue handler for asynchronous generation. It returns the proposal ID.
// Errors that a retry cannot change are marked permanent for the queue.
func (s *TimetableGeneratorService) HandleJob(ctx context.Context, job jobs.Job) (string, error) {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		return "", jobs.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}
	proposal, err := s.generate(ctx, req)
	if err != nil {
		if retryable(err) {
			return "", err
		}
		return "", jobs.Permanent(err)
	}
	return proposal.ID, nil
}

func retryable(err error) bool {
	for _, final := range []*appErrors.Error{appErrors.ErrConfiguration, appErrors.ErrNotFound, appErrors.ErrValidation} {
		if appErrors.HasCode(err, final) {
			return false
		}
	}
	return true
}

// Save persists a proposal as a new timetable version and optionally publishes it.
func (s *TimetableGeneratorService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, err := s.loadProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	schedule := proposal.Schedule
	if req.Publish && !schedule.Complete() && !req.AllowPartial {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("proposal leaves %d sessions unplaced; set allowPartial to publish it", len(schedule.Unplaced)))
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	metaBytes, marshalErr := json.Marshal(models.TimetableSummary{
		ProposalID:  proposal.ID,
		GeneratedAt: proposal.GeneratedAt,
		Stats:       schedule.Stats,
		Unplaced:    len(schedule.Unplaced),
		Partial:     !schedule.Complete(),
	})
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scope := proposal.Scope
	record := &models.Timetable{
		Institution: scope.Institution,
		Year:        scope.Year,
		Semester:    scope.Semester,
		Department:  scope.Department,
		Status:      models.TimetableStatusDraft,
		Meta:        types.JSONText(metaBytes),
	}
	if err = s.timetable.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return nil, err
	}

	rows := toEntryModels(record.ID, schedule.Entries)
	if err = s.entries.InsertBatch(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable entries")
		return nil, err
	}

	if req.Publish {
		if err = s.publishWithin(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}

	if delErr := s.proposals.Delete(ctx, proposal.ID); delErr != nil {
		s.logger.Warn("failed to drop saved proposal", zap.String("proposal_id", proposal.ID), zap.Error(delErr))
	}
	s.logger.Info("timetable saved",
		zap.String("timetable_id", record.ID),
		zap.String("scope", scope.Key()),
		zap.Int("version", record.Version),
		zap.String("status", string(record.Status)),
	)
	return &dto.SaveTimetableResponse{
		TimetableID: record.ID,
		Version:     record.Version,
		Status:      string(record.Status),
		Entries:     len(rows),
	}, nil
}

// Publish promotes a stored draft and archives the previously published version of its scope.
func (s *TimetableGeneratorService) Publish(ctx context.Context, timetableID string) (*models.Timetable, error) {
	record, err := s.findTimetable(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.TimetableStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be published")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.publishWithin(ctx, tx, record); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	return record, nil
}

// List returns the stored versions of a scope, newest first.
func (s *TimetableGeneratorService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "year and semester are required")
	}
	list, err := s.timetable.ListByScope(ctx, query.Scope())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return list, nil
}

// GetEntries returns the placed occurrences of a stored timetable.
func (s *TimetableGeneratorService) GetEntries(ctx context.Context, timetableID string) ([]models.TimetableEntry, error) {
	if timetableID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if _, err := s.findTimetable(ctx, timetableID); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable entries")
	}
	return entries, nil
}

// Delete removes a draft timetable version.
func (s *TimetableGeneratorService) Delete(ctx context.Context, timetableID string) error {
	record, err := s.findTimetable(ctx, timetableID)
	if err != nil {
		return err
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.timetable.Delete(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	return nil
}

// Report renders the feasibility report of a pending proposal.
func (s *TimetableGeneratorService) Report(ctx context.Context, proposalID string, format dto.ReportFormat) (*dto.RenderedReport, error) {
	proposal, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return s.reports.Render(proposal, format)
}

func (s *TimetableGeneratorService) generate(ctx context.Context, req dto.GenerateTimetableRequest) (*models.TimetableProposal, error) {
	scope := req.Scope()

	loadStarted := time.Now()
	catalog, err := s.catalog.LoadSnapshot(ctx, scope)
	s.metrics.ObserveDBQuery("catalog_snapshot", time.Since(loadStarted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no time allocation configured for %s", scope.Key()))
		}
		if appErrors.HasCode(err, appErrors.ErrConfiguration) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling catalog")
	}

	opts := scheduler.Options{OnePerDay: s.cfg.OnePerDay}
	if req.OnePerDay != nil {
		opts.OnePerDay = *req.OnePerDay
	}
	engine := scheduler.NewEngine(scheduler.EngineConfig{Bounds: s.cfg.Bounds, Options: opts}, s.validator, s.logger)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	started := time.Now()
	schedule, err := engine.Run(runCtx, catalog)
	elapsed := time.Since(started)
	if err != nil {
		s.metrics.ObserveSchedulerRun(RunOutcomeError, elapsed)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "scheduling run failed")
	}
	s.metrics.ObserveSchedulerRun(runOutcome(schedule), elapsed)
	s.metrics.RecordOccurrences(schedule.Stats.OccurrencesPlaced, schedule.Stats.OccurrencesRequested-schedule.Stats.OccurrencesPlaced)

	proposal := &models.TimetableProposal{
		ID:          uuid.NewString(),
		Scope:       scope,
		Schedule:    schedule,
		Options:     opts,
		GeneratedAt: s.now(),
	}
	if err := s.proposals.Save(ctx, proposal, s.cfg.ProposalTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable proposal")
	}
	return proposal, nil
}

func (s *TimetableGeneratorService) loadProposal(ctx context.Context, id string) (*models.TimetableProposal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposal id is required")
	}
	proposal, err := s.proposals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) || appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	if proposal == nil || proposal.Schedule == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return proposal, nil
}

func (s *TimetableGeneratorService) findTimetable(ctx context.Context, id string) (*models.Timetable, error) {
	record, err := s.timetable.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return record, nil
}

func (s *TimetableGeneratorService) publishWithin(ctx context.Context, tx *sqlx.Tx, record *models.Timetable) error {
	archived, err := s.timetable.ArchivePublished(ctx, tx, record.Scope(), record.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive published timetable")
	}
	if err := s.timetable.UpdateStatus(ctx, tx, record.ID, models.TimetableStatusPublished, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
	}
	record.Status = models.TimetableStatusPublished
	if archived > 0 {
		s.logger.Info("archived previous timetable", zap.String("scope", record.Scope().Key()), zap.Int64("archived", archived))
	}
	return nil
}

func (s *TimetableGeneratorService) toProposalResponse(p *models.TimetableProposal) dto.TimetableProposalResponse {
	schedule := p.Schedule
	return dto.TimetableProposalResponse{
		ProposalID:  p.ID,
		Scope:       p.Scope,
		GeneratedAt: p.GeneratedAt,
		ExpiresAt:   p.GeneratedAt.Add(s.cfg.ProposalTTL),
		Complete:    schedule.Complete(),
		Cancelled:   schedule.Cancelled,
		Entries:     schedule.Entries,
		Unplaced:    schedule.Unplaced,
		Stats:       schedule.Stats,
		Report:      schedule.Report(),
	}
}

func runOutcome(schedule *scheduler.Schedule) string {
	switch {
	case schedule.Cancelled:
		return RunOutcomeCancelled
	case schedule.Complete():
		return RunOutcomeComplete
	default:
		return RunOutcomePartial
	}
}

func toEntryModels(timetableID string, entries []scheduler.Entry) []models.TimetableEntry {
	rows := make([]models.TimetableEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, models.TimetableEntry{
			TimetableID:     timetableID,
			SessionID:       entry.SessionID,
			CourseID:        entry.CourseID,
			Occurrence:      entry.Occurrence,
			DayOfWeek:       int(entry.Day),
			StartTime:       entry.Start.String(),
			EndTime:         entry.End.String(),
			RoomID:          entry.RoomID,
			TeacherID:       entry.TeacherID,
			BatchIDs:        append([]string(nil), entry.BatchIDs...),
			DurationMinutes: entry.DurationMinutes,
		})
	}
	return rows
}

func toJobResponse(record jobs.Record) dto.TimetableJobResponse {
	resp := dto.TimetableJobResponse{
		JobID:      record.ID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		Error:      record.Error,
		EnqueuedAt: record.EnqueuedAt,
		FinishedAt: record.FinishedAt,
	}
	if record.Status == jobs.StatusSucceeded {
		resp.ProposalID = record.Result
	}
	return resp
}
