package procheck

import "strings"

// Category is what a response body looks like when the portal is unhappy.
type Category int

const (
	// a well-formed page
	CategoryNone Category = iota
	// the server-side framework crashed, usually recovers on its own
	CategoryServerError
	// the echoed form state no longer matches what the server expects,
	// the session must be re-initialized before retrying
	CategoryDesync
	// throttling or a challenge page, back off harder
	CategoryRateLimited
)

type SignatureRule struct {
	Signature string
	Category  Category
}

// Classifier decides whether a response body is an error page. The rule
// set lives behind this interface so it can be swapped when the portal's
// error pages change, without touching retry logic.
type Classifier interface {
	Classify(html string) Category
}

// SignatureClassifier matches case-insensitive substrings in order,
// first hit wins.
type SignatureClassifier []SignatureRule

func (c SignatureClassifier) Classify(html string) Category {
	lower := strings.ToLower(html)
	for _, rule := range c {
		if strings.Contains(lower, rule.Signature) {
			return rule.Category
		}
	}
	return CategoryNone
}

func DefaultClassifier() SignatureClassifier {
	return SignatureClassifier{
		{Signature: "runtime error", Category: CategoryServerError},
		{Signature: "server error in '/' application", Category: CategoryServerError},
		{Signature: "invalid postback", Category: CategoryDesync},
		{Signature: "event validation", Category: CategoryDesync},
		{Signature: "too many requests", Category: CategoryRateLimited},
		{Signature: "captcha", Category: CategoryRateLimited},
		{Signature: "blocked", Category: CategoryRateLimited},
	}
}

func IsErrorResponse(html string) bool {
	return DefaultClassifier().Classify(html) != CategoryNone
}
