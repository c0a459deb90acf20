// Package sniff validates acquired bytes. A guessed document URL can come
// back as an HTML error page with a 200 status, or as a bot-protection
// challenge; status-code checks alone cannot tell those from a real
// document, so every successful acquisition is gated on the format's magic
// signature.
package sniff

import (
	"bytes"
	"net/http"
	"strings"
)

// Format describes a target document format.
type Format struct {
	Name      string
	Extension string
	// Accept is the Accept header value for direct fetches of this format.
	Accept string
	// Magic is the signature the file content must begin with.
	Magic []byte
}

// PDF is the only format the pipeline currently acquires.
var PDF = Format{
	Name:      "pdf",
	Extension: ".pdf",
	Accept:    "application/pdf,application/octet-stream,*/*",
	Magic:     []byte("%PDF"),
}

// Valid reports whether body begins with the format's magic signature.
func (f Format) Valid(body []byte) bool {
	return len(body) >= len(f.Magic) && bytes.HasPrefix(body, f.Magic)
}

// Detector inspects a response that failed signature validation and names
// the interposed page, if recognizable.
type Detector func(status int, header http.Header, body []byte) (detected bool, source string)

// DefaultDetectors returns the standard set, ordered from most to least
// specific.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectHTML,
	}
}

// Identify runs the detectors and returns the first match. It is diagnostic
// only; validation failure is already decided by the missing signature.
func Identify(status int, header http.Header, body []byte, detectors []Detector) (string, bool) {
	for _, d := range detectors {
		if ok, source := d(status, header, body); ok {
			return source, true
		}
	}
	return "", false
}

func detectCloudflare(status int, header http.Header, body []byte) (bool, string) {
	if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(body, []byte("cf-browser-verification")) ||
		bytes.Contains(body, []byte("cf-turnstile")) ||
		bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if strings.Contains(strings.ToLower(header.Get("Server")), "akamai") {
			return true, "Akamai"
		}
		if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectHTML catches the common case: the server answered the guessed URL
// with an ordinary HTML page.
func detectHTML(status int, header http.Header, body []byte) (bool, string) {
	if strings.Contains(strings.ToLower(header.Get("Content-Type")), "text/html") {
		return true, "html page"
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<!DOCTYPE")) || bytes.HasPrefix(trimmed, []byte("<!doctype")) ||
		bytes.HasPrefix(trimmed, []byte("<html")) {
		return true, "html page"
	}
	return false, ""
}
