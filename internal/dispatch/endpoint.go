package dispatch

import "strings"

// completionsSuffix is the path every resolved endpoint ends with.
const completionsSuffix = "/chat/completions"

// providerDeepSeek publishes its completion API without the /v1 segment.
const providerDeepSeek = "deepseek"

// ResolveEndpoint maps a provider identity and configured base URL to a
// fully qualified completion endpoint. Providers are not uniform in whether
// the configured base URL already carries a version or path segment, so the
// mapping is a suffix heuristic; it is idempotent and never double-appends,
// regardless of how often it is applied to its own output.
func ResolveEndpoint(providerName, baseURL string) string {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		return ""
	}

	// Already a completions-style path, with or without a version segment.
	if strings.HasSuffix(url, completionsSuffix) {
		return url
	}

	if strings.EqualFold(strings.TrimSpace(providerName), providerDeepSeek) {
		if strings.HasSuffix(url, "/") {
			return url + "chat/completions"
		}
		return url + completionsSuffix
	}

	if strings.HasSuffix(strings.TrimSuffix(url, "/"), "/v1") {
		return strings.TrimSuffix(url, "/") + completionsSuffix
	}

	if strings.HasSuffix(url, "/") {
		return url + "v1/chat/completions"
	}
	return url + "/v1" + completionsSuffix
}
