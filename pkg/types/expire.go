// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "fmt"

// ExpireStyle selects how a FileCode expires: by usage count, by elapsed
// time, or never.
type ExpireStyle string

const (
	ExpireStyleCount   ExpireStyle = "count"
	ExpireStyleMinute  ExpireStyle = "minute"
	ExpireStyleHour    ExpireStyle = "hour"
	ExpireStyleDay     ExpireStyle = "day"
	ExpireStyleWeek    ExpireStyle = "week"
	ExpireStyleForever ExpireStyle = "forever"
)

// ExpireStyles lists every valid style, in the order clients see them.
var ExpireStyles = []ExpireStyle{
	ExpireStyleCount,
	ExpireStyleMinute,
	ExpireStyleHour,
	ExpireStyleDay,
	ExpireStyleWeek,
	ExpireStyleForever,
}

// ParseExpireStyle validates a client-supplied style string.
func ParseExpireStyle(s string) (ExpireStyle, error) {
	style := ExpireStyle(s)
	for _, v := range ExpireStyles {
		if style == v {
			return style, nil
		}
	}
	return "", fmt.Errorf("unknown expire style: %q", s)
}
