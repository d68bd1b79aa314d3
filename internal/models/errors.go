package models

import (
	"fmt"
	"strings"
)

// ManifestTransportError means the listing could not be walked to its end.
type ManifestTransportError struct {
	URL        string
	Page       int
	StatusCode int
	Err        error
}

func (e *ManifestTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("manifest page %d: unexpected status %d from %s", e.Page, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("manifest page %d: %v", e.Page, e.Err)
}

func (e *ManifestTransportError) Unwrap() error { return e.Err }

// ManifestDecodeError means a listing entry could not be turned into descriptors.
type ManifestDecodeError struct {
	Page   int
	Index  int
	Reason string
	Err    error
}

func (e *ManifestDecodeError) Error() string {
	var msg string
	switch {
	case e.Page > 0 && e.Index >= 0:
		msg = fmt.Sprintf("manifest page %d entry %d: %s", e.Page, e.Index, e.Reason)
	case e.Page > 0:
		msg = fmt.Sprintf("manifest page %d: %s", e.Page, e.Reason)
	case e.Index >= 0:
		msg = fmt.Sprintf("manifest entry %d: %s", e.Index, e.Reason)
	default:
		msg = "manifest: " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ManifestDecodeError) Unwrap() error { return e.Err }

// ArtifactFetchError is a failed download of one artifact. Transient errors
// (network failures, 5xx) are retried; permanent ones (4xx) are not.
type ArtifactFetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ArtifactFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *ArtifactFetchError) Unwrap() error { return e.Err }

// ArtifactWriteError is a local persistence failure. It is never retried.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", strings.TrimPrefix(e.Field, "--"), e.Reason)
}
