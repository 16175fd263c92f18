package gitexec

import (
	"encoding/base64"
	"regexp"
)

// Auth is the HTTP authorization header git sends to one repository URL.
// It is only ever passed with -c on individual commands, never written to
// a config file.
type Auth struct {
	URL    string
	Header string // "AUTHORIZATION: basic <base64>", empty for anonymous access
}

// NewAuth builds the basic-auth header GitHub accepts for installation and
// workflow tokens, scoped to repoURL.
func NewAuth(repoURL, token string) Auth {
	if token == "" {
		return Auth{URL: repoURL}
	}
	return Auth{
		URL:    repoURL,
		Header: "AUTHORIZATION: basic " + encodeCredential(token),
	}
}

// Secret returns the encoded credential so callers can register it with a
// log masker. GitHub masks the raw token, not its base64 form.
func (a Auth) Secret() string {
	if a.Header == "" {
		return ""
	}
	return reAuthHeader.FindStringSubmatch(a.Header)[2]
}

func (a Auth) String() string {
	if a.Header == "" {
		return a.URL + " (anonymous)"
	}
	return a.URL + " (" + RedactString(a.Header) + ")"
}

func (a Auth) configArgs() []string {
	if a.Header == "" {
		return nil
	}
	return []string{"-c", "http." + a.URL + ".extraheader=" + a.Header}
}

func encodeCredential(token string) string {
	return base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
}

var reAuthHeader = regexp.MustCompile(`(?i)(authorization:\s*basic\s+)([A-Za-z0-9+/=]+)`)

// RedactString masks any basic-auth credential in s.
func RedactString(s string) string {
	return reAuthHeader.ReplaceAllString(s, "${1}***")
}

// Redact returns a copy of args with credentials masked.
func Redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = RedactString(a)
	}
	return out
}
