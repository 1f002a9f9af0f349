// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapshare/pkg/chunk"
	"github.com/LeeDigitalWorks/zapshare/pkg/code"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata/memory"
	"github.com/LeeDigitalWorks/zapshare/pkg/quota"
	"github.com/LeeDigitalWorks/zapshare/pkg/ratelimit"
	"github.com/LeeDigitalWorks/zapshare/pkg/retrieve"
	"github.com/LeeDigitalWorks/zapshare/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/upload"
)

func newTestServer(t *testing.T, mutate func(*types.Config)) *Server {
	t.Helper()

	cfg := types.DefaultConfig()
	cfg.MaxUploadBytes = 50 << 20
	cfg.Quota.PerOwnerBytes = 40 << 20
	cfg.TokenSecret = "test-secret"
	// High enough that tests do not trip the per-IP buckets by accident.
	cfg.RateLimit.Upload = types.RateBucketConfig{Limit: 1000, Window: time.Minute}
	cfg.RateLimit.Error = types.RateBucketConfig{Limit: 1000, Window: time.Minute}
	if mutate != nil {
		mutate(&cfg)
	}

	store := memory.NewStore()
	be := backend.NewMemoryStorage()
	guard := quota.NewGuard(store, cfg.Quota.PerOwnerBytes)
	engine := code.NewEngine(store, cfg.Code)
	signer := retrieve.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL)

	files := upload.NewService(store, be, guard, engine, cfg)
	chunks := chunk.NewManager(store, be, guard, engine, cfg)
	shares := retrieve.NewService(store, be, guard, engine, signer, cfg.TokenTTL)
	limiter := ratelimit.NewWindowLimiter(cfg.RateLimit)
	t.Cleanup(func() { _ = limiter.Close() })

	return NewServer(cfg, files, chunks, shares, limiter)
}

func multipartBody(t *testing.T, field, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doJSON(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (int, map[string]any) {
	t.Helper()
	var resp struct {
		Code   int             `json:"code"`
		Detail json.RawMessage `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var detail map[string]any
	if len(resp.Detail) > 0 && resp.Detail[0] == '{' {
		require.NoError(t, json.Unmarshal(resp.Detail, &detail))
	}
	return resp.Code, detail
}

func shareTestFile(t *testing.T, s *Server, name string, content []byte, fields map[string]string) string {
	t.Helper()
	body, contentType := multipartBody(t, "file", name, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	appCode, detail := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, appCode)
	return detail["code"].(string)
}

// =========================================================================
// Upload endpoints
// =========================================================================

func TestShareFile(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "file", "report.pdf", []byte("pdf bytes"), map[string]string{
		"expire_style": "count",
		"expire_value": "3",
	})
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	appCode, detail := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusOK, appCode)
	assert.Equal(t, "report.pdf", detail["name"])
	assert.Len(t, detail["code"].(string), 5)
}

func TestShareFile_BadExpireStyle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "file", "a.txt", []byte("x"), map[string]string{
		"expire_style": "fortnight",
	})
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareFile_SizeLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(cfg *types.Config) {
		cfg.MaxUploadBytes = 4
	})

	body, contentType := multipartBody(t, "file", "big.bin", []byte("too large"), nil)
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShareFile_MissingFile(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "other", "a.txt", []byte("x"), nil)
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChunkedUploadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	content := bytes.Repeat([]byte("zapshare"), 1024)
	chunkSize := int64(2048)

	rec := doJSON(s, http.MethodPost, "/chunk/upload/init/", map[string]any{
		"file_name":  "archive.tar",
		"file_size":  len(content),
		"chunk_size": chunkSize,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, detail := decodeEnvelope(t, rec)
	uploadID := detail["upload_id"].(string)
	totalChunks := int(detail["total_chunks"].(float64))
	require.Equal(t, 4, totalChunks)
	assert.Equal(t, false, detail["existed"])
	assert.Empty(t, detail["uploaded_chunks"])

	// Upload out of order.
	for _, idx := range []int{3, 1, 0, 2} {
		start := int64(idx) * chunkSize
		end := start + chunkSize
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		body, contentType := multipartBody(t, "chunk", "blob", content[start:end], nil)
		req := httptest.NewRequest(http.MethodPost,
			fmt.Sprintf("/chunk/upload/chunk/%s/%d", uploadID, idx), body)
		req.Header.Set("Content-Type", contentType)
		crec := httptest.NewRecorder()
		s.ServeHTTP(crec, req)
		require.Equal(t, http.StatusOK, crec.Code, crec.Body.String())
		_, cdetail := decodeEnvelope(t, crec)
		assert.Len(t, cdetail["chunk_hash"].(string), 64)
	}

	rec = doJSON(s, http.MethodPost, "/chunk/upload/complete/"+uploadID, map[string]any{
		"expire_value": 1,
		"expire_style": "day",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, detail = decodeEnvelope(t, rec)
	shareCode := detail["code"].(string)
	assert.Equal(t, "archive.tar", detail["name"])

	// Retrieve and compare bytes.
	req := httptest.NewRequest(http.MethodGet, "/share/select/?code="+shareCode, nil)
	grec := httptest.NewRecorder()
	s.ServeHTTP(grec, req)
	require.Equal(t, http.StatusOK, grec.Code)
	assert.Equal(t, content, grec.Body.Bytes())
	assert.Contains(t, grec.Header().Get("Content-Disposition"), "archive.tar")
}

func TestChunkUpload_UnknownSession(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "chunk", "blob", []byte("data"), nil)
	req := httptest.NewRequest(http.MethodPost, "/chunk/upload/chunk/nosuchsession/0", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChunkUpload_BadIndex(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(s, http.MethodPost, "/chunk/upload/init/", map[string]any{
		"file_name":  "x.bin",
		"file_size":  10,
		"chunk_size": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, detail := decodeEnvelope(t, rec)
	uploadID := detail["upload_id"].(string)

	body, contentType := multipartBody(t, "chunk", "blob", []byte("xxxxx"), nil)
	req := httptest.NewRequest(http.MethodPost, "/chunk/upload/chunk/"+uploadID+"/7", body)
	req.Header.Set("Content-Type", contentType)
	crec := httptest.NewRecorder()
	s.ServeHTTP(crec, req)
	assert.Equal(t, http.StatusBadRequest, crec.Code)

	req = httptest.NewRequest(http.MethodPost, "/chunk/upload/chunk/"+uploadID+"/notanumber", body)
	req.Header.Set("Content-Type", contentType)
	crec = httptest.NewRecorder()
	s.ServeHTTP(crec, req)
	assert.Equal(t, http.StatusBadRequest, crec.Code)
}

func TestChunkComplete_Incomplete(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(s, http.MethodPost, "/chunk/upload/init/", map[string]any{
		"file_name":  "partial.bin",
		"file_size":  10,
		"chunk_size": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, detail := decodeEnvelope(t, rec)
	uploadID := detail["upload_id"].(string)

	body, contentType := multipartBody(t, "chunk", "blob", []byte("aaaaa"), nil)
	req := httptest.NewRequest(http.MethodPost, "/chunk/upload/chunk/"+uploadID+"/0", body)
	req.Header.Set("Content-Type", contentType)
	crec := httptest.NewRecorder()
	s.ServeHTTP(crec, req)
	require.Equal(t, http.StatusOK, crec.Code)

	rec = doJSON(s, http.MethodPost, "/chunk/upload/complete/"+uploadID, map[string]any{
		"expire_style": "day",
		"expire_value": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =========================================================================
// Retrieval endpoints
// =========================================================================

func TestSelect_SoftNotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": "ZZZZZ"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "share not found or expired", resp.Detail)
}

func TestSelect_FileReturnsDownloadPath(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	shareCode := shareTestFile(t, s, "doc.txt", []byte("document body"), nil)

	rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": shareCode})
	require.Equal(t, http.StatusOK, rec.Code)
	appCode, detail := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, appCode)
	assert.Equal(t, shareCode, detail["code"])
	assert.Equal(t, "doc.txt", detail["name"])
	assert.EqualValues(t, len("document body"), detail["size"])

	// Memory backend cannot presign, so the text field carries the
	// token-gated app download path.
	downloadPath := detail["text"].(string)
	require.True(t, strings.HasPrefix(downloadPath, "/share/download?"), downloadPath)

	req := httptest.NewRequest(http.MethodGet, downloadPath, nil)
	drec := httptest.NewRecorder()
	s.ServeHTTP(drec, req)
	require.Equal(t, http.StatusOK, drec.Code)
	assert.Equal(t, "document body", drec.Body.String())
}

func TestDownload_SurvivesSpentShare(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	shareCode := shareTestFile(t, s, "once.bin", []byte("single use"), map[string]string{
		"expire_style": "count",
		"expire_value": "1",
	})

	rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": shareCode})
	require.Equal(t, http.StatusOK, rec.Code)
	_, detail := decodeEnvelope(t, rec)
	downloadPath := detail["text"].(string)

	// The select consumed the last use; the code itself is now gone.
	rec = doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": shareCode})
	appCode, _ := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, appCode)

	// But the already-minted download link still works.
	req := httptest.NewRequest(http.MethodGet, downloadPath, nil)
	drec := httptest.NewRecorder()
	s.ServeHTTP(drec, req)
	require.Equal(t, http.StatusOK, drec.Code)
	assert.Equal(t, "single use", drec.Body.String())
}

func TestDownload_BadToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	shareCode := shareTestFile(t, s, "secret.bin", []byte("secret"), nil)

	req := httptest.NewRequest(http.MethodGet,
		"/share/download?key=forged&code="+url.QueryEscape(shareCode), nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetCodeFile_ExactlyOnce(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	shareCode := shareTestFile(t, s, "once.txt", []byte("only once"), map[string]string{
		"expire_style": "count",
		"expire_value": "1",
	})

	req := httptest.NewRequest(http.MethodGet, "/share/select/?code="+shareCode, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "only once", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/share/select/?code="+shareCode, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// =========================================================================
// Owner endpoints
// =========================================================================

func TestUserFiles_ListAndDelete(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	var codes []string
	for i := 0; i < 3; i++ {
		codes = append(codes, shareTestFile(t, s,
			fmt.Sprintf("file-%d.bin", i), []byte("contents"), map[string]string{
				"user_id": "owner-1",
			}))
	}

	rec := doJSON(s, http.MethodPost, "/share/user/files/", map[string]any{
		"user_id": "owner-1", "page": 1, "page_size": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, detail := decodeEnvelope(t, rec)
	pagination := detail["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pagination["total"])
	assert.EqualValues(t, 2, pagination["pages"])
	assert.Len(t, detail["files"].([]any), 2)

	rec = doJSON(s, http.MethodDelete, "/share/file/user_delete", map[string]any{
		"user_id": "owner-1", "code": codes[0],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodPost, "/share/user/files/", map[string]any{
		"user_id": "owner-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, detail = decodeEnvelope(t, rec)
	pagination = detail["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pagination["total"])
}

func TestUserFiles_DeleteWrongOwner(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	shareCode := shareTestFile(t, s, "mine.bin", []byte("mine"), map[string]string{
		"user_id": "owner-1",
	})

	rec := doJSON(s, http.MethodDelete, "/share/file/user_delete", map[string]any{
		"user_id": "owner-2", "code": shareCode,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// Admission control
// =========================================================================

func TestUploadBucketLimits(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(cfg *types.Config) {
		cfg.RateLimit.Upload = types.RateBucketConfig{Limit: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		shareTestFile(t, s, fmt.Sprintf("f%d.txt", i), []byte("x"), nil)
	}

	body, contentType := multipartBody(t, "file", "f3.txt", []byte("x"), nil)
	req := httptest.NewRequest(http.MethodPost, "/share/file/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestErrorBucketLimitsBadLookups(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(cfg *types.Config) {
		cfg.RateLimit.Error = types.RateBucketConfig{Limit: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": "WRONG"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": "WRONG"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGlobalThrottle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(cfg *types.Config) {
		cfg.RateLimit.GlobalRPS = 1
		cfg.RateLimit.GlobalBurst = 1
	})

	rec := doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": "AAAAA"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodPost, "/share/select/", map[string]any{"code": "AAAAA"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
