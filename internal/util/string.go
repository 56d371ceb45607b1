// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"github.com/mattn/go-runewidth"
)

// TruncateDisplay shortens s to at most width terminal cells, appending an
// ellipsis when truncated. Width-aware so CJK and emoji do not overflow the
// message column.
func TruncateDisplay(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 1 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "…")
}

// PadDisplay pads s with spaces on the right to the given cell width.
func PadDisplay(s string, width int) string {
	return runewidth.FillRight(s, width)
}
