// Package bot implements a Telegram bot session on top of the wire engine:
// polling for updates with a single watermark, decoding them into Message
// records, and the common send actions.
//
// A Bot is not reentrant. Issue one call at a time and release the
// connection with Close after calls that leave it open.
//
// Dedup keeps one scalar: an update is new when its id is above the highest
// id delivered so far. A batch whose ids are out of order loses the lower
// ones; there is no per-id history.
package bot
