package runner

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

const defaultExt = ".jpg"

// SafeName sanitizes a row's name value for use as a filename: leading and
// trailing whitespace is trimmed, then every character that is not
// alphanumeric, '_' or '-' is replaced with '_'.
func SafeName(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	return b.String()
}

// ExtFromURL derives the destination extension from the URL path component
// with any query stripped, including the leading dot. Defaults to ".jpg"
// when the path has none.
func ExtFromURL(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}

	if u, err := url.Parse(s); err == nil {
		s = u.Path
	}

	if ext := path.Ext(s); ext != "" {
		return ext
	}

	return defaultExt
}

// DestName is the deterministic destination filename for a task. It is
// recomputed each run, never persisted.
func DestName(name, rawURL string) string {
	return SafeName(name) + ExtFromURL(rawURL)
}
