// Package patterns recognizes injection, XSS, and path-traversal signatures in
// untrusted input. The pattern sets are fixed and auditable: false positives
// are acceptable (reject and log), false negatives on known attack classes are
// not. All matchers are pure, total functions.
package patterns

import (
	"path"
	"regexp"
	"strings"
)

var (
	// SQL keywords, comment/terminator tokens, and scripting protocol or
	// event-handler tokens. Compiled case-insensitively.
	injectionRe = regexp.MustCompile(`(?i)(\b(union|select|insert|delete|update|drop|create|alter|exec)\b|--|;|'|"|javascript:|vbscript:|\bon\w+\s*=)`)

	xssRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*script\b`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`(?i)data:\s*text/html`),
		regexp.MustCompile(`(?i)expression\s*\(`),
		regexp.MustCompile(`(?i)url\s*\(`),
		regexp.MustCompile(`(?i)@import`),
		regexp.MustCompile(`\$\{[^}]*\}`),
		regexp.MustCompile(`(?i)<\s*\?\s*php`),
		regexp.MustCompile(`<%`),
	}
)

// dangerousExtensions is the deny-list of executable or server-interpreted
// file extensions. Checked case-insensitively against the final extension.
var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".scr": {}, ".pif": {}, ".com": {},
	".vbs": {}, ".jar": {}, ".php": {}, ".asp": {}, ".jsp": {}, ".js": {},
}

// MatchesInjection reports whether text contains a SQL or scripting injection
// signature.
func MatchesInjection(text string) bool {
	return injectionRe.MatchString(text)
}

// MatchesXSS reports whether text contains a cross-site-scripting signature:
// script tags, scriptable URIs, inline event handlers, CSS escape hatches,
// template-injection markers, or embedded server-side tags.
func MatchesXSS(text string) bool {
	for _, re := range xssRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchesPathTraversal reports whether text contains a parent-directory
// escape, either literally or after path normalization.
func MatchesPathTraversal(text string) bool {
	if strings.Contains(text, "..") {
		return true
	}
	cleaned := path.Clean(strings.ReplaceAll(text, `\`, "/"))
	return cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../")
}

// HasDangerousExtension reports whether the file name's final extension is on
// the executable deny-list. Only the true final extension counts, so
// "payload.php.jpg" is judged as ".jpg".
func HasDangerousExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	_, bad := dangerousExtensions[ext]
	return bad
}
