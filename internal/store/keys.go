package store

import (
	"crypto/md5"
	"fmt"

	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

// Cache key layout. Everything belonging to one page lives under the
// "page:{key}" entry and the "pages:{key}:..." namespace so one glob pass
// can drop it all. List views are keyed by a hash of their filter and
// pagination parameters and live under "pages:list:".

func PageCacheKey(pageKey string) string {
	return "page:" + pageKey
}

func PostsCacheKey(pageKey string, pg interfaces.Pagination) string {
	return fmt.Sprintf("pages:%s:posts:%d:%d", pageKey, pg.Page, pg.PageSize)
}

func FollowersCacheKey(pageKey string, pg interfaces.Pagination) string {
	return fmt.Sprintf("pages:%s:followers:%d:%d", pageKey, pg.Page, pg.PageSize)
}

func SummaryCacheKey(pageKey string) string {
	return fmt.Sprintf("pages:%s:summary", pageKey)
}

// PageListCacheKey digests the full filter and pagination tuple with md5 so
// two distinct views can never share a key. Not a security boundary, just a
// 128-bit fingerprint.
func PageListCacheKey(filter interfaces.PageFilter, pg interfaces.Pagination) string {
	min, max := -1, -1
	if filter.FollowerMin != nil {
		min = *filter.FollowerMin
	}
	if filter.FollowerMax != nil {
		max = *filter.FollowerMax
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%d|%d|%s|%s|%d|%d",
		min, max, filter.Industry, filter.Name, pg.Page, pg.PageSize)))
	return fmt.Sprintf("pages:list:%x", sum)
}

// pageScopePatterns covers every cached view that can go stale when a page
// is re-ingested: the page entry, its nested collections, and all list
// views (any of which may include the page).
func pageScopePatterns(pageKey string) []string {
	return []string{
		PageCacheKey(pageKey),
		"pages:" + pageKey + ":*",
		"pages:list:*",
	}
}
