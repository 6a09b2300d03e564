// Package services wires the voxnotes pipeline from configuration.
//
// Build opens the entity store, constructs the on-device model service,
// the optional cloud client and the extraction orchestrator, and returns
// them behind a Registry. Both binaries start from Build so the daemon and
// the CLI process notes identically.
package services
