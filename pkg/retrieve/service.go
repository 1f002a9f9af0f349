// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieve resolves codes back into shares and streams their
// content. Use accounting happens before bytes are served: a share's
// last use goes to exactly one caller, and a download that loses the
// race sees the share as gone.
package retrieve

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/code"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/quota"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

// Service resolves and serves shares.
type Service struct {
	store   metadata.Store
	backend types.BackendStorage
	quota   *quota.Guard
	engine  *code.Engine
	signer  *TokenSigner

	tokenTTL time.Duration
}

// NewService creates a Service.
func NewService(store metadata.Store, backend types.BackendStorage, guard *quota.Guard, engine *code.Engine, signer *TokenSigner, tokenTTL time.Duration) *Service {
	return &Service{
		store:    store,
		backend:  backend,
		quota:    guard,
		engine:   engine,
		signer:   signer,
		tokenTTL: tokenTTL,
	}
}

// Resolve looks up a share and enforces expiry without consuming a use.
// Unknown and expired shares are indistinguishable to the caller.
func (s *Service) Resolve(ctx context.Context, shareCode string) (*types.FileCode, error) {
	fc, err := s.store.GetFileCode(ctx, shareCode)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, apierr.NotFound("share not found")
		}
		return nil, err
	}
	if code.IsExpired(fc, time.Now()) {
		return nil, apierr.Expired()
	}
	return fc, nil
}

// Selection is the result of redeeming a code: inline text, or the
// content's location for files.
type Selection struct {
	FileCode *types.FileCode

	// Text is set for text shares.
	Text string

	// FileURL is a time-limited direct URL when the backend supports
	// presigning. Otherwise DownloadToken authorizes a streamed
	// download through the service.
	FileURL       string
	DownloadToken string
}

// Select redeems a code: it burns one use, then returns the content
// location. The consume happens first, so two clients racing for the
// last use cannot both be served.
func (s *Service) Select(ctx context.Context, shareCode string) (*Selection, error) {
	fc, err := s.Resolve(ctx, shareCode)
	if err != nil {
		return nil, err
	}

	ok, err := s.engine.RecordUse(ctx, shareCode, time.Now())
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, apierr.NotFound("share not found")
		}
		return nil, err
	}
	if !ok {
		// Lost the race for the last use.
		return nil, apierr.Expired()
	}

	sel := &Selection{FileCode: fc}
	if fc.IsText() {
		sel.Text = *fc.Text
		return sel, nil
	}

	url, err := s.backend.FileURL(ctx, fc.StoredRef, s.tokenTTL)
	switch {
	case err == nil:
		sel.FileURL = url
	case errors.Is(err, types.ErrURLUnsupported):
		token, err := s.signer.Sign(fc.Code, time.Now())
		if err != nil {
			return nil, err
		}
		sel.DownloadToken = token
	default:
		return nil, err
	}
	return sel, nil
}

// Fetch redeems a code and streams the content in one step, for clients
// that download directly instead of going through Select. Text shares
// stream their inline payload.
func (s *Service) Fetch(ctx context.Context, shareCode string) (io.ReadCloser, *types.FileCode, error) {
	fc, err := s.Resolve(ctx, shareCode)
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.engine.RecordUse(ctx, shareCode, time.Now())
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, nil, apierr.NotFound("share not found")
		}
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apierr.Expired()
	}

	return s.open(ctx, fc)
}

// FetchDirect streams content for a token minted by Select. The use was
// already burned there, so expiry is not re-checked; the share may have
// gone to zero uses in between and the token still works until it
// expires. A missing share still reads as not found.
func (s *Service) FetchDirect(ctx context.Context, shareCode, token string) (io.ReadCloser, *types.FileCode, error) {
	if err := s.signer.Verify(token, shareCode); err != nil {
		// A bad capability reveals nothing about whether the share exists.
		return nil, nil, apierr.NotFound("share not found")
	}

	fc, err := s.store.GetFileCode(ctx, shareCode)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, nil, apierr.NotFound("share not found")
		}
		return nil, nil, err
	}

	return s.open(ctx, fc)
}

func (s *Service) open(ctx context.Context, fc *types.FileCode) (io.ReadCloser, *types.FileCode, error) {
	if fc.IsText() {
		return io.NopCloser(strings.NewReader(*fc.Text)), fc, nil
	}
	rc, err := s.backend.Read(ctx, fc.StoredRef)
	if err != nil {
		return nil, nil, err
	}
	return rc, fc, nil
}

// OwnerFileList is one page of an owner's shares.
type OwnerFileList struct {
	Files    []*types.FileCode
	Page     int
	PageSize int
	Total    int64
	Pages    int64
}

// ListOwnerFiles returns one page of the owner's shares, newest first.
func (s *Service) ListOwnerFiles(ctx context.Context, ownerID string, page, pageSize int) (*OwnerFileList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	files, total, err := s.store.ListOwnerFileCodes(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}

	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return &OwnerFileList{
		Files:    files,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
	}, nil
}

// DeleteOwnerFile removes one of the owner's shares, its stored bytes,
// and its quota charge. A share owned by someone else reads as missing.
func (s *Service) DeleteOwnerFile(ctx context.Context, ownerID, shareCode string) error {
	fc, err := s.store.GetFileCode(ctx, shareCode)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return apierr.NotFound("share not found")
		}
		return err
	}
	if fc.OwnerID != ownerID {
		return apierr.NotFound("share not found")
	}

	if err := s.store.DeleteFileCode(ctx, shareCode); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return apierr.NotFound("share not found")
		}
		return err
	}

	if !fc.IsText() {
		if err := s.backend.Delete(ctx, fc.StoredRef); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", fc.StoredRef).Msg("failed to delete stored object")
		}
	}
	s.quota.Release(ctx, ownerID, fc.Size)
	return nil
}
