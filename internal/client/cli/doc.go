// Package cli provides the interactive Shopkeeper shop client.
//
// It wires configuration, the local replica, the server transport, the sync
// client and an interactive REPL that keeps working while the server is
// unreachable. Typical flow: prompt for credentials, start a background
// connectivity watcher, and execute user commands against the local replica
// while the scheduler pushes and pulls changes in the background.
//
// Key features:
//   - Login / Logout (online with offline fallback)
//   - Put / Get / List / Delete records of any syncable table
//   - Conflicts view for pushes the server refused
//   - Manual and periodic sync, server status
//   - Product image upload through a presigned URL
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, runREPL and the syncer package for details.
package cli
