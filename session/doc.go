/*
Package session proxies a program's standard streams across one duplex connection.

The initiating side (Client) runs wherever the program is invoked, typically as a
browser's native messaging host. The accepting side (Server) runs the real target
program. Targets are looked up by name in a registry and only `stdio` targets can run.

The protocol proceeds as follows:

1. The client connects and sends one handshake with the target name and its arguments.
2. The server resolves the target. If it is unknown or not a `stdio` target, or fails to
start, the server sends one diagnostic frame describing the failure and closes.
3. Otherwise stdin flows client->server as tag 0 frames, and stdout and stderr flow
server->client as tag 1 and tag 2 frames. A zero length frame ends its stream.
4. When either direction is finished, the other is wound down and both sides close the
connection. The server kills the target if it is still running. The one exception is the
client's own input ending: the client keeps delivering output until the server's output
ends or the connection closes.

There is no close frame. A side learns the session is over from end-of-stream sentinels
or from the connection closing, whichever comes first.

Each direction is a pipeline: pumps read sources into a stream.Router and one writer
drains it. Sessions never time out; a stalled peer or target holds its pipeline open
until it closes or fails.
*/
package session
