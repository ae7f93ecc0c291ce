/*
Package exec provides a client and server for a remote code runner which executes submitted source text in an interpreter attached to a pseudo-terminal and streams the terminal output (server->client). It uses WebSockets for bidi messaging so only requires an HTTP server.

Runs are scoped to the WebSocket connection--each text message received on a connection is one complete unit of source code, and the messages on one connection are executed strictly one at a time, in order. Separate connections are fully independent and run concurrently.

The protocol proceeds as follows:

1. The client opens a WebSocket connection with the server.
2. The client sends a text message containing the source code to run.
3. The server writes the code to a uniquely-named unit file, spawns the configured interpreter on it under a pseudo-terminal, and sends each chunk of terminal output back as a text message, in production order, with no framing metadata.
4. The relay for a run ends when the interpreter closes its terminal, or when no output has arrived for the quiet interval. There is no end-of-run marker; silence is the client's only completion signal.
5. The client may send further messages, each starting a new run, or close the connection.

A normal client close is not an error. The quiet-interval timeout is a designed completion path, not a failure: it is how the server gives up on interpreters that block awaiting input they will never receive.
*/
package exec
