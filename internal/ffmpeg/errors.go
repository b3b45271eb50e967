package ffmpeg

import (
	"fmt"
	"strings"
)

// DecodeError indicates the container or codec could not be opened.
type DecodeError struct {
	Path   string
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("decode failed for %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("decode failed for %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EmptyVideoError indicates the source has no usable duration.
type EmptyVideoError struct {
	Path string
}

func (e *EmptyVideoError) Error() string {
	return fmt.Sprintf("video %s has near-zero duration", e.Path)
}

// classifyDecodeFailure turns an ffmpeg exit failure into a DecodeError
// carrying the most relevant stderr line.
func classifyDecodeFailure(err error, stderr string) error {
	detail := ""
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// The last non-empty line usually names the actual failure.
		detail = line
	}
	return &DecodeError{Detail: detail, Err: err}
}
