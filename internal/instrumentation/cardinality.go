package instrumentation

import "strings"

// ExtractUserDomain returns the lower-cased domain of email, or "unknown".
// Use it instead of the full address wherever a label or log field is
// aggregated.
//
//	ExtractUserDomain("grandma@Example.com")  // "example.com"
//	ExtractUserDomain("invalid")              // "unknown"
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return strings.ToLower(domain)
}
