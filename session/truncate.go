// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"unicode/utf8"
)

// bytesPerToken is the rough byte cost of one model token.
const bytesPerToken = 4

// ApproxTokenCount estimates the token count of text.
func ApproxTokenCount(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

// TruncateTokens bounds text to approximately maxTokens, keeping the
// head and tail and replacing the middle with an elision marker that
// names the original token count. Text already within the bound is
// returned unchanged.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	originalTokens := ApproxTokenCount(text)
	if originalTokens <= maxTokens {
		return text
	}

	budget := maxTokens * bytesPerToken
	headLen := budget / 2
	tailLen := budget - headLen

	head := text[:headLen]
	tail := text[len(text)-tailLen:]

	// Never split a multi-byte rune at the seam.
	for len(head) > 0 && !utf8.ValidString(head) {
		head = head[:len(head)-1]
	}
	for len(tail) > 0 && !utf8.ValidString(tail) {
		tail = tail[1:]
	}

	return fmt.Sprintf("%s\n[... output truncated, %d tokens total ...]\n%s",
		head, originalTokens, tail)
}
