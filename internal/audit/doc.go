// Package audit relays gateway events (logins, logouts, rejected calls,
// navigation decisions) to a caller-supplied sink without blocking the call
// path.
//
// # Components
//
//   - [Event] is one structured audit record.
//   - [Sink] consumes events. [NoOpSink], [ChannelSink], [JSONWriterSink] and
//     [LogSink] are provided.
//   - [Dispatcher] is a buffered asynchronous relay with drop-if-full or
//     block-if-full behavior.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The client does that.
//   - Import ledgergate or any sibling package.
package audit
