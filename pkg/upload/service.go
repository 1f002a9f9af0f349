// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload implements single-shot file and text shares. Files that
// fit in one request body skip the chunk machinery entirely.
package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/code"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/quota"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

// Service creates shares from whole files or text snippets.
type Service struct {
	store   metadata.Store
	backend types.BackendStorage
	quota   *quota.Guard
	engine  *code.Engine

	maxUploadBytes int64
}

// NewService creates a Service.
func NewService(store metadata.Store, backend types.BackendStorage, guard *quota.Guard, engine *code.Engine, cfg types.Config) *Service {
	return &Service{
		store:          store,
		backend:        backend,
		quota:          guard,
		engine:         engine,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// FileRequest describes a single-shot file share.
type FileRequest struct {
	FileName    string
	Size        int64
	Data        io.Reader
	ExpireStyle types.ExpireStyle
	ExpireValue int64
	OwnerID     string
}

// ShareFile stores the file and mints its retrieval code. Written bytes
// and the quota reservation are rolled back if any later step fails.
func (s *Service) ShareFile(ctx context.Context, req FileRequest) (*types.FileCode, error) {
	if req.FileName == "" {
		return nil, apierr.Validation("file name is required")
	}
	if req.Size <= 0 {
		return nil, apierr.Validation("file size must be positive, got %d", req.Size)
	}
	if req.Size > s.maxUploadBytes {
		return nil, apierr.SizeLimit(s.maxUploadBytes)
	}

	now := time.Now().UTC()
	expiresAt, remainingUses, unlimited, err := code.ComputeExpiry(req.ExpireStyle, req.ExpireValue, now)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, req.OwnerID, req.Size); err != nil {
		return nil, err
	}

	prefix, suffix := utils.SplitName(req.FileName)
	destKey := utils.StoredKey(now, suffix)

	if err := s.backend.Write(ctx, destKey, io.LimitReader(req.Data, req.Size), req.Size); err != nil {
		s.quota.Release(ctx, req.OwnerID, req.Size)
		return nil, fmt.Errorf("store file: %w", err)
	}

	fc := &types.FileCode{
		Prefix:        prefix,
		Suffix:        suffix,
		StoredRef:     destKey,
		Size:          req.Size,
		ExpiresAt:     expiresAt,
		RemainingUses: remainingUses,
		Unlimited:     unlimited,
		OwnerID:       req.OwnerID,
		CreatedAt:     now,
	}
	if err := s.engine.Mint(ctx, fc); err != nil {
		if delErr := s.backend.Delete(ctx, destKey); delErr != nil {
			logger.Ctx(ctx).Error().Err(delErr).Str("key", destKey).Msg("failed to remove orphaned upload")
		}
		s.quota.Release(ctx, req.OwnerID, req.Size)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("code", fc.Code).
		Int64("size", fc.Size).
		Msg("file share created")

	return fc, nil
}

// TextRequest describes a text share.
type TextRequest struct {
	Text        string
	ExpireStyle types.ExpireStyle
	ExpireValue int64
	OwnerID     string
}

// ShareText stores the snippet inline in the share record; nothing
// touches the storage backend.
func (s *Service) ShareText(ctx context.Context, req TextRequest) (*types.FileCode, error) {
	if req.Text == "" {
		return nil, apierr.Validation("text is required")
	}
	size := int64(len(req.Text))
	if size > s.maxUploadBytes {
		return nil, apierr.SizeLimit(s.maxUploadBytes)
	}

	now := time.Now().UTC()
	expiresAt, remainingUses, unlimited, err := code.ComputeExpiry(req.ExpireStyle, req.ExpireValue, now)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, req.OwnerID, size); err != nil {
		return nil, err
	}

	text := req.Text
	fc := &types.FileCode{
		Size:          size,
		Text:          &text,
		ExpiresAt:     expiresAt,
		RemainingUses: remainingUses,
		Unlimited:     unlimited,
		OwnerID:       req.OwnerID,
		CreatedAt:     now,
	}
	if err := s.engine.Mint(ctx, fc); err != nil {
		s.quota.Release(ctx, req.OwnerID, size)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("code", fc.Code).
		Msg("text share created")

	return fc, nil
}
