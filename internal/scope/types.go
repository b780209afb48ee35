package scope

import "regexp"

// Rules defines the crawl boundary for one run.
type Rules struct {
	// AllowedOrigins are origins treated like the seed origin.
	AllowedOrigins []string
	// ExcludePatterns reject any URL whose canonical string they match.
	ExcludePatterns []*regexp.Regexp
	// SkipExtensions are path extensions never fetched. Nil means
	// DefaultSkipExtensions.
	SkipExtensions []string
	RespectRobots  bool
}
