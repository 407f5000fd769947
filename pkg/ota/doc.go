// Package ota implements the device side of the firmware update protocol:
// a single-session state machine that consumes raw characteristic writes,
// stages the incoming image through a storage.ImageWriter, and reports
// progress and status over the notification channel and observer hooks.
//
// The protocol is a plain token stream on one data channel. A transfer is
//
//	OPEN  ->  <u32 little-endian image size>  ->  data chunks  ->  DONE
//
// with ABORT accepted at any point while receiving. Tokens are recognized
// by exact byte match and position in the sequence; there is no command
// discriminator byte. See Session.HandleWrite for the disambiguation rules.
//
// The Session performs no locking and spawns no goroutines of its own. The
// hosting transport must deliver write, command, and connection events one
// at a time.
package ota
