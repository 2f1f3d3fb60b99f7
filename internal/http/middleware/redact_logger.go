// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger the router
// installs. Phone numbers reach the API in query strings
// (/calls/find?phone_number=..., caller= and receiver= filters), and
// presigned URLs are bearer credentials, so both are scrubbed before anything
// is logged. Bodies are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked entirely, in addition to Authorization, Cookie
	// and Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
	// MaskParams are query parameters whose values are masked entirely.
	// Signed-URL parameters are always masked.
	MaskParams []string
}

var (
	// UUIDs first so the phone pattern never eats their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\+?\d{0,4}[ .\-]?\(?\d{1,4}\)?(?:[ .\-]?\d{2,4}){2,5}`)
)

func redactValue(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, v := range append(base, extra...) {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// redactQuery masks listed parameters and scrubs the rest value by value.
// Unparseable queries are scrubbed as one string.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return redactValue(raw)
	}
	for k, vs := range q {
		_, masked := mask[strings.ToLower(k)]
		for i := range vs {
			if masked {
				vs[i] = "[REDACTED]"
			} else {
				vs[i] = redactValue(vs[i])
			}
		}
	}
	// Encode escapes the brackets; keep logs readable.
	s, _ := url.QueryUnescape(q.Encode())
	return s
}

// RedactingLogger logs one scrubbed line per request (info, warn on 4xx,
// error on 5xx) and attaches the request-scoped logger for LoggerFrom.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"x-goog-signature", "x-goog-credential", "signature"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()
		path := routePath(c)
		query := redactQuery(c.Request.URL.RawQuery, maskParams)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redactValue(strings.Join(vv, ", "))
		}

		l := scopedLogger(c, path)
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(query, maxQueryLogLength)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Int64("bytes_in", c.Request.ContentLength).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
