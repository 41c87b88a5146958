// Package wire speaks just enough HTTP/1.1 to talk to the Telegram Bot API
// over a caller-supplied byte stream.
//
// An Engine writes one request at a time (GET, JSON POST, or a streamed
// multipart upload), then reads the response with ReadResponse, which
// separates headers from the body, honours Content-Length when present and
// gives up after a bounded time. The engine never reports transport errors
// to its caller: a failed connect yields an empty body, and a read timeout
// yields whatever body bytes arrived in time. Callers decide what an empty
// or unparseable body means.
package wire
