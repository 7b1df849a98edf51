package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

var errNotProcessing = errors.New("batch is no longer processing")

// PipelineStore backs the pipeline's ledger, job and dataset ports with the
// relational store. Multi-row writes run in a single transaction.
type PipelineStore struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Repos
}

func NewPipelineStore(db *gorm.DB, baseLog *logger.Logger, r repos.Repos) *PipelineStore {
	return &PipelineStore{db: db, log: baseLog.With("service", "PipelineStore"), repos: r}
}

func (s *PipelineStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repos.Ledger.Balance(dbctx.New(ctx), userID)
}

func (s *PipelineStore) Credit(ctx context.Context, userID uuid.UUID, cents int64, key string) (bool, error) {
	return s.repos.Ledger.Apply(dbctx.New(ctx), userID, cents, key, domain.LedgerReasonGenerationRefund)
}

func (s *PipelineStore) Reserve(ctx context.Context, rec *domain.Batch, debitKey string) error {
	if rec == nil || rec.CostCents <= 0 {
		return fmt.Errorf("reserve: positive cost required: %w", domain.ErrInvalidArgument)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx).WithTx(tx)
		applied, err := s.repos.Ledger.Apply(dbc, rec.UserID, -rec.CostCents, debitKey, domain.LedgerReasonGenerationDebit)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("debit %s already applied", debitKey)
		}
		return s.repos.Batches.Create(dbc, rec)
	})
}

func (s *PipelineStore) GetJobByExecutionID(ctx context.Context, executionID string) (*domain.Batch, error) {
	return s.repos.Batches.GetByExecutionID(dbctx.New(ctx), executionID)
}

func (s *PipelineStore) UpdateProgress(ctx context.Context, jobID uuid.UUID, step string, progress int, errMsg string) error {
	return s.repos.Batches.UpdateProgress(dbctx.New(ctx), jobID, step, progress, errMsg)
}

func (s *PipelineStore) SetExternalHandle(ctx context.Context, jobID uuid.UUID, handle string) error {
	return s.repos.Batches.UpdateFields(dbctx.New(ctx), jobID, map[string]interface{}{
		"external_job_handle": strings.TrimSpace(handle),
	})
}

func (s *PipelineStore) Finalize(ctx context.Context, jobID uuid.UUID, step string, images []*domain.Image) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx).WithTx(tx)
		if err := s.repos.Images.ReplaceForBatch(dbc, jobID, images); err != nil {
			return err
		}
		ok, err := s.repos.Batches.MarkCompleted(dbc, jobID, step, len(images))
		if err != nil {
			return err
		}
		if !ok {
			return errNotProcessing
		}
		return nil
	})
	if errors.Is(err, errNotProcessing) {
		return false, nil
	}
	return err == nil, err
}

func (s *PipelineStore) FailJob(ctx context.Context, jobID uuid.UUID, step, errMsg string) (bool, error) {
	return s.repos.Batches.MarkFailed(dbctx.New(ctx), jobID, step, errMsg)
}

func (s *PipelineStore) RecordRefund(ctx context.Context, jobID uuid.UUID, cents int64) (bool, error) {
	return s.repos.Batches.SetRefunded(dbctx.New(ctx), jobID, cents)
}

func (s *PipelineStore) ResolveDataset(ctx context.Context, userID uuid.UUID, datasetID *uuid.UUID, name string) (uuid.UUID, error) {
	dbc := dbctx.New(ctx)
	if datasetID != nil && *datasetID != uuid.Nil {
		ds, err := s.repos.Datasets.GetForUser(dbc, userID, *datasetID)
		if err != nil {
			return uuid.Nil, err
		}
		return ds.ID, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled dataset"
	}
	ds := &domain.Dataset{UserID: userID, Name: name}
	if err := s.repos.Datasets.Create(dbc, ds); err != nil {
		return uuid.Nil, err
	}
	return ds.ID, nil
}
