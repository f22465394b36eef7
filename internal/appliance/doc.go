// Package appliance manages command-line sessions to a FortiGate appliance.
//
// A [Session] is a single-use, ordered command channel that has already been
// switched into the configured administrative context (vdom). It is opened
// with [Open], used through [Session.Execute], and released with
// [Session.Close]. Sessions are never pooled or shared: each status poll opens
// its own and closes it on every exit path.
//
// The transport is abstracted behind [Dialer] and [Channel] so the session
// logic can run over SSH (package sshchannel) or over an in-memory fake in
// tests.
//
// # Errors
//
// Every failure is classified with one of the sentinel kinds
// [ErrConfiguration], [ErrConnection], [ErrAuthentication], [ErrCommand] and
// [ErrParse]. Errors wrap both the kind and the underlying cause, so callers
// can use errors.Is against either.
//
// # Log Prefixes
//
// Session lifecycle messages are logged with the [appliance] prefix.
package appliance
