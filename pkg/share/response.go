// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"encoding/json"
	"net/http"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
)

// APIResponse is the uniform envelope. Code is the application status
// and can differ from the transport status on the retrieval paths.
type APIResponse struct {
	Code   int `json:"code"`
	Detail any `json:"detail"`
}

func writeJSON(w http.ResponseWriter, transport int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(transport)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, detail any) {
	writeJSON(w, http.StatusOK, APIResponse{Code: http.StatusOK, Detail: detail})
}

// writeError surfaces err with its transport status. Unknown causes are
// logged and collapsed into an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	e := apierr.From(err)
	if e.Kind == apierr.KindUnknown {
		logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, e.HTTPStatus, APIResponse{Code: e.AppCode, Detail: e.Detail})
}

// writeSoftError surfaces err on the retrieval paths: missing and
// expired shares ride a transport 200 with the 404 embedded in the
// envelope, and share the same message so callers cannot probe which
// codes ever existed.
func writeSoftError(w http.ResponseWriter, err error) {
	if apierr.IsNotFound(err) {
		writeJSON(w, http.StatusOK, APIResponse{
			Code:   http.StatusNotFound,
			Detail: "share not found or expired",
		})
		return
	}
	writeError(w, err)
}
