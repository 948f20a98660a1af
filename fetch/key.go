package fetch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BuildCacheKey derives the deterministic cache key for one logical fetch:
// source and normalized target stay readable for pattern invalidation, the
// filter parameters collapse into a hash. Identical parameters in any map
// order produce identical keys.
func BuildCacheKey(source, target string, params map[string]string) string {
	return fmt.Sprintf("fetch:%s:%s:%016x", source, normalizeTarget(target), hashParams(params))
}

// staleKey shadows a cache key with a long-TTL copy used for degraded
// fallback after a failed fetch.
func staleKey(key string) string {
	return "stale:" + key
}

func normalizeTarget(target string) string {
	target = strings.ToLower(strings.TrimSpace(target))
	return strings.ReplaceAll(target, " ", "-")
}

func hashParams(params map[string]string) uint64 {
	if len(params) == 0 {
		return xxhash.Sum64String("")
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	return xxhash.Sum64String(b.String())
}
