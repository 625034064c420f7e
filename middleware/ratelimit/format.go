package ratelimit

import "strconv"

// formatInt formata valores de headers (Retry-After, X-RateLimit-*) sem fmt.
func formatInt(v int) string { return strconv.Itoa(v) }
