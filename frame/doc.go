/*
Package frame implements the two wire formats spoken over a proxy connection.

The initiator opens with exactly one handshake:

	[length: 2 bytes, native byte order][length bytes of JSON {"host_extension_name", "args"}]

after which both sides exchange only data frames:

	[size: 1 byte][tag: 1 byte][size bytes of payload]

Tag 0 is input, 1 is output and 2 is diagnostic. A frame with size 0 marks the end of its
tag's stream. Other tags decode fine and are left to the receiver to drop.
*/
package frame
