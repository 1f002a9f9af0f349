// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/chunk"
	"github.com/LeeDigitalWorks/zapshare/pkg/ratelimit"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/upload"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

// =========================================================================
// Request/Response types
// =========================================================================

type selectFileRequest struct {
	Code string `json:"code"`
}

type initChunkUploadRequest struct {
	FileName  string `json:"file_name"`
	ChunkSize int64  `json:"chunk_size"`
	FileSize  int64  `json:"file_size"`
	FileHash  string `json:"file_hash"`
	UserID    string `json:"user_id"`
}

type completeUploadRequest struct {
	ExpireValue int64  `json:"expire_value"`
	ExpireStyle string `json:"expire_style"`
	UserID      string `json:"user_id"`
}

type userFileListRequest struct {
	UserID   string `json:"user_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type userFileDeleteRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type userFileInfo struct {
	ID            int64   `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Size          int64   `json:"size"`
	CreatedAt     string  `json:"created_at"`
	ExpiredAt     *string `json:"expired_at"`
	IsText        bool    `json:"is_text"`
	RemainingUses int64   `json:"expired_count"`
	Unlimited     bool    `json:"unlimited"`
	UsedCount     int64   `json:"used_count"`
}

type paginationInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apierr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func parseExpiry(style string, value int64) (types.ExpireStyle, int64, error) {
	if style == "" {
		style = string(types.ExpireStyleDay)
	}
	if value == 0 {
		value = 1
	}
	parsed, err := types.ParseExpireStyle(style)
	if err != nil {
		return "", 0, apierr.Validation("%v", err)
	}
	return parsed, value, nil
}

// =========================================================================
// Upload handlers
// =========================================================================

func (s *Server) shareFile(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketUpload) {
		return
	}

	if err := r.ParseMultipartForm(s.cfg.DefaultChunkSize); err != nil {
		writeError(w, apierr.Validation("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.Validation("file field is required"))
		return
	}
	defer file.Close()

	value, _ := strconv.ParseInt(r.FormValue("expire_value"), 10, 64)
	style, value, err := parseExpiry(r.FormValue("expire_style"), value)
	if err != nil {
		writeError(w, err)
		return
	}

	fc, err := s.files.ShareFile(r.Context(), upload.FileRequest{
		FileName:    header.Filename,
		Size:        header.Size,
		Data:        file,
		ExpireStyle: style,
		ExpireValue: value,
		OwnerID:     r.FormValue("user_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.record(r, ratelimit.BucketUpload)
	writeOK(w, map[string]any{"code": fc.Code, "name": header.Filename})
}

func (s *Server) initChunkUpload(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketUpload) {
		return
	}

	var req initChunkUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.chunks.InitSession(r.Context(), chunk.InitRequest{
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		ChunkSize:   req.ChunkSize,
		ContentHash: req.FileHash,
		OwnerID:     req.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	uploaded := res.UploadedChunks
	if uploaded == nil {
		uploaded = []int64{}
	}
	s.record(r, ratelimit.BucketUpload)
	writeOK(w, map[string]any{
		"existed":         false,
		"upload_id":       res.Session.UploadID,
		"chunk_size":      res.Session.ChunkSize,
		"total_chunks":    res.Session.TotalChunks,
		"uploaded_chunks": uploaded,
	})
}

func (s *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("uploadId")
	index, err := strconv.ParseInt(r.PathValue("chunkIndex"), 10, 64)
	if err != nil {
		writeError(w, apierr.Validation("invalid chunk index %q", r.PathValue("chunkIndex")))
		return
	}

	if err := r.ParseMultipartForm(s.cfg.DefaultChunkSize); err != nil {
		writeError(w, apierr.Validation("invalid multipart form: %v", err))
		return
	}
	part, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, apierr.Validation("chunk field is required"))
		return
	}
	defer part.Close()

	rec, err := s.chunks.PutChunk(r.Context(), uploadID, index, part)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{"chunk_hash": rec.ChunkHash})
}

func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketUpload) {
		return
	}

	uploadID := r.PathValue("uploadId")
	var req completeUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	style, value, err := parseExpiry(req.ExpireStyle, req.ExpireValue)
	if err != nil {
		writeError(w, err)
		return
	}

	fc, err := s.chunks.CompleteSession(r.Context(), uploadID, chunk.CompleteRequest{
		ExpireStyle: style,
		ExpireValue: value,
		OwnerID:     req.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.record(r, ratelimit.BucketUpload)
	writeOK(w, map[string]any{"code": fc.Code, "name": fc.DisplayName()})
}

// =========================================================================
// Retrieval handlers
// =========================================================================

// getCodeFile redeems a code and streams the content in one request.
func (s *Server) getCodeFile(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketError) {
		return
	}

	rc, fc, err := s.shares.Fetch(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		if apierr.IsNotFound(err) {
			s.record(r, ratelimit.BucketError)
		}
		writeSoftError(w, err)
		return
	}
	defer rc.Close()

	s.serveContent(w, fc, rc)
}

// selectFile redeems a code and returns metadata plus the content
// location: inline text, a presigned URL, or an app download path.
func (s *Server) selectFile(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketError) {
		return
	}

	var req selectFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sel, err := s.shares.Select(r.Context(), req.Code)
	if err != nil {
		if apierr.IsNotFound(err) {
			s.record(r, ratelimit.BucketError)
		}
		writeSoftError(w, err)
		return
	}

	text := sel.Text
	if !sel.FileCode.IsText() {
		text = sel.FileURL
		if text == "" {
			text = "/share/download?key=" + url.QueryEscape(sel.DownloadToken) +
				"&code=" + url.QueryEscape(sel.FileCode.Code)
		}
	}
	writeOK(w, map[string]any{
		"code": sel.FileCode.Code,
		"name": sel.FileCode.DisplayName(),
		"size": sel.FileCode.Size,
		"text": text,
	})
}

// downloadFile serves the token-gated direct download path minted by
// selectFile. The token was issued against a consumed use, so expiry is
// not re-checked here.
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, ratelimit.BucketError) {
		return
	}

	code := r.URL.Query().Get("code")
	key := r.URL.Query().Get("key")
	rc, fc, err := s.shares.FetchDirect(r.Context(), code, key)
	if err != nil {
		if apierr.IsNotFound(err) {
			s.record(r, ratelimit.BucketError)
		}
		writeSoftError(w, err)
		return
	}
	defer rc.Close()

	if fc.IsText() {
		data, err := io.ReadAll(rc)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, string(data))
		return
	}
	s.serveContent(w, fc, rc)
}

func (s *Server) serveContent(w http.ResponseWriter, fc *types.FileCode, rc io.Reader) {
	if fc.IsText() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": fc.DisplayName(),
		}))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(fc.Size, 10))
	w.WriteHeader(http.StatusOK)

	buf := utils.SyncPoolGetBuffer()
	defer utils.SyncPoolPutBuffer(buf)
	buf.Grow(64 << 10)
	if _, err := io.CopyBuffer(w, rc, buf.Bytes()[:buf.Cap()]); err != nil {
		// Client went away mid-stream, nothing to send.
		return
	}
}

// =========================================================================
// Owner file management
// =========================================================================

func (s *Server) listUserFiles(w http.ResponseWriter, r *http.Request) {
	var req userFileListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, apierr.Validation("user_id is required"))
		return
	}

	page, err := s.shares.ListOwnerFiles(r.Context(), req.UserID, req.Page, req.PageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	files := make([]userFileInfo, 0, len(page.Files))
	for _, fc := range page.Files {
		info := userFileInfo{
			ID:            fc.ID,
			Code:          fc.Code,
			Name:          fc.DisplayName(),
			Size:          fc.Size,
			CreatedAt:     fc.CreatedAt.Format(time.RFC3339),
			IsText:        fc.IsText(),
			RemainingUses: fc.RemainingUses,
			Unlimited:     fc.Unlimited,
			UsedCount:     fc.UsedCount,
		}
		if fc.ExpiresAt != nil {
			v := fc.ExpiresAt.Format(time.RFC3339)
			info.ExpiredAt = &v
		}
		files = append(files, info)
	}

	writeOK(w, map[string]any{
		"files": files,
		"pagination": paginationInfo{
			Page:     page.Page,
			PageSize: page.PageSize,
			Total:    page.Total,
			Pages:    page.Pages,
		},
	})
}

func (s *Server) deleteUserFile(w http.ResponseWriter, r *http.Request) {
	var req userFileDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeError(w, apierr.Validation("user_id and code are required"))
		return
	}

	if err := s.shares.DeleteOwnerFile(r.Context(), req.UserID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}
