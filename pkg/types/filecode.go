// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// FileCode binds a short retrieval code to stored content and its
// expiry/usage state. It is the only client-facing handle to a share.
type FileCode struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
	StoredRef string `json:"stored_ref,omitempty"` // backend key; empty for inline text
	Size      int64  `json:"size"`

	// Text is the inline payload for text shares. nil means the content
	// lives behind StoredRef.
	Text *string `json:"text,omitempty"`

	// Expiry gates. Exactly one of {ExpiresAt set, RemainingUses counting,
	// Unlimited} governs, depending on the expire style used at creation.
	// Unlimited disambiguates RemainingUses == 0 from "exhausted".
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RemainingUses int64      `json:"remaining_uses"`
	Unlimited     bool       `json:"unlimited"`
	UsedCount     int64      `json:"used_count"`

	OwnerID   string    `json:"owner_id,omitempty"` // empty = anonymous, excluded from quota
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName reconstructs the client-visible file name.
func (f *FileCode) DisplayName() string {
	if f.Prefix == "" && f.Suffix == "" {
		return "Text"
	}
	return f.Prefix + f.Suffix
}

// IsText reports whether this code resolves to an inline text payload.
func (f *FileCode) IsText() bool {
	return f.Text != nil
}

// ExpiredAt reports whether the code is expired as of now. A code never
// un-expires: ExpiresAt is immutable and RemainingUses only decreases.
// The deadline itself is expired, matching the stores' ConsumeUse guard.
func (f *FileCode) ExpiredAt(now time.Time) bool {
	if f.ExpiresAt != nil && !f.ExpiresAt.After(now) {
		return true
	}
	if !f.Unlimited && f.RemainingUses <= 0 {
		return true
	}
	return false
}
