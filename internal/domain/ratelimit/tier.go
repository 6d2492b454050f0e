package ratelimit

// RequestInfo is the part of a request a tier matcher can see.
type RequestInfo struct {
	Path   string
	Method string
	IP     string
}

// Matcher decides whether a tier applies to a request.
type Matcher interface {
	Matches(req RequestInfo) (bool, error)
}

// MatchFunc adapts a plain function to Matcher.
type MatchFunc func(req RequestInfo) (bool, error)

// Matches calls f.
func (f MatchFunc) Matches(req RequestInfo) (bool, error) {
	return f(req)
}

// Tier is one named rate limit applied to the requests its Matcher selects.
// The bucket key is FormatKey(Name, client IP).
type Tier struct {
	Name   string
	Config RateLimitConfig
	Match  Matcher
}
