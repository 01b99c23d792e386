// Package command defines the bridge's command surface: the registry of
// command descriptors, the argument schemas they validate against, and the
// dispatcher that runs them one at a time against an analyzer session.
//
// A command name or argument problem is reported before the session is
// locked or any analyzer traffic happens. Once a command runs, it owns the
// session exclusively until its whole exchange completes, so responses from
// different commands can never interleave.
package command
