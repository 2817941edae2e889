package apify

// Options is the actor input for one scrape run. Defaults come from the
// environment at startup and are handed in explicitly; deep logic never
// reads process-wide state.
type Options struct {
	ScrapeReactions   bool
	MaxReactions      int
	ScrapeComments    bool
	MaxComments       int
	MaxPosts          int // 0 = unbounded
	IncludeQuotePosts bool
	IncludeReposts    bool
}

// OptionsPatch carries per-request overrides from the refresh body. Pointer
// fields distinguish "not supplied" from an explicit false/zero.
type OptionsPatch struct {
	ScrapeReactions   *bool `json:"scrapeReactions"`
	MaxReactions      *int  `json:"maxReactions"`
	ScrapeComments    *bool `json:"scrapeComments"`
	MaxComments       *int  `json:"maxComments"`
	MaxPosts          *int  `json:"maxPosts"`
	IncludeQuotePosts *bool `json:"includeQuotePosts"`
	IncludeReposts    *bool `json:"includeReposts"`
}

// Apply lays the supplied overrides over o and returns the result.
func (o Options) Apply(p OptionsPatch) Options {
	if p.ScrapeReactions != nil {
		o.ScrapeReactions = *p.ScrapeReactions
	}
	if p.MaxReactions != nil {
		o.MaxReactions = *p.MaxReactions
	}
	if p.ScrapeComments != nil {
		o.ScrapeComments = *p.ScrapeComments
	}
	if p.MaxComments != nil {
		o.MaxComments = *p.MaxComments
	}
	if p.MaxPosts != nil {
		o.MaxPosts = *p.MaxPosts
	}
	if p.IncludeQuotePosts != nil {
		o.IncludeQuotePosts = *p.IncludeQuotePosts
	}
	if p.IncludeReposts != nil {
		o.IncludeReposts = *p.IncludeReposts
	}

	return o
}
