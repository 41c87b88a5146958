package wire

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/wirebot/pkg/transport"
)

// idleWait is how long the reader yields when the stream has nothing buffered.
const idleWait = 10 * time.Millisecond

// AssumeSingleChunk names the completion policy applied when a response has
// no Content-Length header: the body is considered complete as soon as its
// first byte arrives, and whatever is already buffered at that point is kept.
// Servers that stream a body in several bursts without a length header will
// be cut after the first burst.
const AssumeSingleChunk = true

type readState int

const (
	readingHeaders readState = iota
	readingBody
)

// ReadResponse reads one HTTP response from conn. Headers are separated from
// the body on the first blank line; at most maxBody body bytes are kept. The
// call returns when the body is complete or timeout has elapsed since the
// call started, whichever comes first. A timeout is not an error: the partial
// body read so far is returned with complete set to false.
func ReadResponse(ctx context.Context, conn transport.Transport, clock transport.Clock, maxBody int, timeout time.Duration) (body string, complete bool) {
	var (
		state         = readingHeaders
		headers       bytes.Buffer
		out           strings.Builder
		lineIsBlank   = true
		contentLength = -1
		consumed      int
	)

	start := clock.Now()
	for clock.Now().Sub(start) < timeout {
		if ctx.Err() != nil {
			break
		}

		for conn.Available() > 0 {
			c, err := conn.ReadByte()
			if err != nil {
				break
			}

			switch state {
			case readingHeaders:
				if lineIsBlank && c == '\n' {
					state = readingBody
					contentLength = parseContentLength(headers.String())
				} else {
					headers.WriteByte(c)
				}
			case readingBody:
				consumed++
				if out.Len() < maxBody {
					out.WriteByte(c)
				}
				if contentLength > 0 {
					complete = consumed >= contentLength
				} else {
					complete = AssumeSingleChunk
				}
			}

			if c == '\n' {
				lineIsBlank = true
			} else if c != '\r' {
				lineIsBlank = false
			}

			if complete && contentLength > 0 {
				break
			}
		}

		if complete {
			break
		}
		clock.Sleep(idleWait)
	}

	return out.String(), complete
}

// parseContentLength scans raw header text case-insensitively for a
// content-length header and returns its value, or -1 when absent or
// unterminated.
func parseContentLength(headers string) int {
	lower := strings.ToLower(headers)
	idx := strings.Index(lower, "content-length")
	if idx < 0 {
		return -1
	}
	rest := lower[idx+len("content-length"):]
	end := strings.IndexByte(rest, '\r')
	if end < 0 {
		return -1
	}
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest[:end]), ":"))
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
