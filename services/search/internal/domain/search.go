package domain

import "time"

const (
	FilterFinished   = "finished"
	FilterEndingSoon = "endingSoon"
	FilterLive       = "live"

	OrderMake = "make"
	OrderNew  = "new"
	OrderEnd  = "end"
)

// MaxPageNumber bounds paging so the row offset stays small.
const MaxPageNumber = 10000

// EndingSoonWindow is how close to its end a live auction must be to match
// the endingSoon filter.
const EndingSoonWindow = 6 * time.Hour

type SearchParams struct {
	SearchTerm string `query:"searchTerm"`
	Seller     string `query:"seller"`
	Winner     string `query:"winner"`
	FilterBy   string `query:"filterBy" validate:"omitempty,oneof=finished endingSoon live"`
	OrderBy    string `query:"orderBy" validate:"omitempty,oneof=make new end"`
	PageNumber int    `query:"pageNumber" validate:"gte=0,lte=10000"`
	PageSize   int    `query:"pageSize" validate:"gte=0,lte=100"`
}

func (p *SearchParams) Normalize() {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageNumber > MaxPageNumber {
		p.PageNumber = MaxPageNumber
	}
	if p.PageSize < 1 {
		p.PageSize = 4
	}
	if p.OrderBy == "" {
		p.OrderBy = OrderEnd
	}
}

func (p *SearchParams) Offset() int {
	return (p.PageNumber - 1) * p.PageSize
}

type SearchResult struct {
	Results    []Item `json:"results"`
	PageCount  int64  `json:"pageCount"`
	TotalCount int64  `json:"totalCount"`
}

func NewSearchResult(items []Item, total int64, pageSize int) *SearchResult {
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}

	return &SearchResult{Results: items, PageCount: pages, TotalCount: total}
}
