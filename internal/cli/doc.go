// Package cli implements authctl, the operator command line for AuthKeeper.
// It opens the same storage as the server and drives the session
// coordinator directly: creating accounts, clearing sessions, inspecting
// accounts and running migrations.
package cli
