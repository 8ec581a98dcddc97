package email

import (
	"net/url"
	"strings"
)

const tokenParam = "token"

// BuildMagicLink sets the token query parameter on baseURL. ok is false when
// no base URL was given. Existing parameters keep their order and any earlier
// token parameter is replaced by one appended at the end. A base URL that
// does not parse as an absolute URL falls back to plain concatenation; link
// building never fails.
func BuildMagicLink(baseURL, token string) (link string, ok bool) {
	if baseURL == "" {
		return "", false
	}

	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		separator := "?"
		if strings.Contains(baseURL, "?") {
			separator = "&"
		}
		return baseURL + separator + tokenParam + "=" + url.QueryEscape(token), true
	}

	// Web origins always carry a path; custom-scheme deep links are left as given
	if u.Path == "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = "/"
	}
	u.RawQuery = withToken(u.RawQuery, token)

	return u.String(), true
}

// withToken drops every token pair from rawQuery and appends the new one.
func withToken(rawQuery, token string) string {
	pairs := make([]string, 0, strings.Count(rawQuery, "&")+2)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if name, err := url.QueryUnescape(key); err == nil && name == tokenParam {
			continue
		}
		pairs = append(pairs, pair)
	}
	pairs = append(pairs, tokenParam+"="+url.QueryEscape(token))
	return strings.Join(pairs, "&")
}
