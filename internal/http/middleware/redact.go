package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

const redacted = "[REDACTED]"

// RedactOptions extends the built-in masking of RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced wholesale, in addition to Authorization,
	// Cookie and Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskParams are query parameters replaced wholesale, in addition to the
	// booking contact fields.
	MaskParams []string
}

// RedactingLogger is the production access logger. It never logs bodies; the
// query string and request headers are logged after scrubbing:
//   - masked headers and query parameters are replaced with [REDACTED]
//   - UUIDs, e-mail addresses, phone numbers (Japanese domestic, +81 and
//     other E.164 forms) and postal codes in remaining values are replaced
//     with a typed marker such as [REDACTED:email]
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	return accessLog(newRedactor(opts))
}

type redactRule struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: UUIDs go first so their digit groups are not taken for
// phone numbers, and phones before postal codes for the same reason.
var redactRules = []redactRule{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	// 03-1234-5678, 090 1234 5678, 0120123456, +81-90-1234-5678
	{regexp.MustCompile(`(?:\+81[ -]?|\b0)\d{1,4}[ -]?\d{1,4}[ -]?\d{4}\b`), "[REDACTED:phone]"},
	{regexp.MustCompile(`\+\d{10,15}\b`), "[REDACTED:phone]"},
	// 〒100-0001 or 100-0001
	{regexp.MustCompile(`〒?\s?\b\d{3}-\d{4}\b`), "[REDACTED:postal]"},
}

// contactParams are the appointment fields that identify a person.
var contactParams = []string{"email", "phone", "contact_name", "company_name"}

type redactor struct {
	maskHeaders map[string]struct{}
	maskParams  map[string]struct{}
}

func newRedactor(opts RedactOptions) *redactor {
	return &redactor{
		maskHeaders: lowerSet([]string{"Authorization", "Cookie", "Set-Cookie"}, opts.MaskHeaders),
		maskParams:  lowerSet(contactParams, opts.MaskParams),
	}
}

func lowerSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, s := range l {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

// scrub applies the pattern rules to a free-form value.
func scrub(s string) string {
	if s == "" {
		return s
	}
	for _, r := range redactRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// query rewrites a raw query string with masked parameters replaced and the
// rest scrubbed. Keys are sorted; values are logged unescaped. An unparsable
// query is scrubbed as a whole.
func (rd *redactor) query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return scrub(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, masked := rd.maskParams[strings.ToLower(k)]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(scrub(k))
			b.WriteByte('=')
			if masked {
				b.WriteString(redacted)
			} else {
				b.WriteString(scrub(v))
			}
		}
	}
	return b.String()
}

// headers flattens h with masked headers replaced and the rest scrubbed.
func (rd *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := rd.maskHeaders[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = scrub(strings.Join(vv, ", "))
	}
	return out
}
