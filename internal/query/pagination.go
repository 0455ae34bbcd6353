package query

import "math"

// MaxPageSize bounds the page size a URL may ask for.
const MaxPageSize = 1000

// maxSkip is the largest skip a GraphQL Int argument can carry.
const maxSkip = math.MaxInt32

// Window is the slice of a list a page shows.
type Window struct {
	Page      int
	PageSize  int
	PageCount int
	Skip      int
	Take      int
}

// Paginate computes the window of page for a list of count items. The page
// is clamped into [1, PageCount]; a list with no items has one empty page.
func Paginate(count, page, pageSize int) Window {
	if pageSize <= 0 {
		pageSize = 1
	}
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return Window{
		Page:      page,
		PageSize:  pageSize,
		PageCount: pages,
		Skip:      (page - 1) * pageSize,
		Take:      pageSize,
	}
}

// MaxPage is the last page whose skip still fits a GraphQL Int.
func MaxPage(pageSize int) int {
	if pageSize <= 0 {
		pageSize = 1
	}
	return maxSkip/pageSize + 1
}

// Offset is the skip argument of a page before the item count is known.
// Pages past MaxPage use the skip of MaxPage.
func Offset(page, pageSize int) int {
	if page < 1 || pageSize <= 0 {
		return 0
	}
	return (min(page, MaxPage(pageSize)) - 1) * pageSize
}
