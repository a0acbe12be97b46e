// Package logutil holds helpers for writing credentials and other sensitive
// values to logs.
package logutil

import "strings"

const maskFill = "****"

// MaskSecret keeps the first visible runes of secret and replaces the rest
// with a fixed fill, so the length of the secret does not leak. Secrets too
// short to keep a prefix without revealing most of them are masked entirely.
// An empty secret stays empty.
func MaskSecret(secret string, visible int) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if visible <= 0 || len(runes) <= 2*visible {
		return maskFill
	}
	return string(runes[:visible]) + maskFill
}

// MaskHeader masks the value of a raw "Name: value" header line when Name is
// one of names, compared case-insensitively. Other lines are returned as is.
func MaskHeader(line string, names ...string) string {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return line
	}
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return name + ": " + MaskSecret(strings.TrimSpace(value), 0)
		}
	}
	return line
}
