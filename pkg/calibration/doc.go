// Package calibration implements the two-step calibration wizard and the
// types shared with the daemon API and the CLI. It contains:
//
//   - Phase: the discrete steps of the wizard
//   - State: the runtime state of the wizard
//   - Status: a view model returned by the HTTP API and printed by the CLI
//   - Wizard: delay entry, then voltage capture, committed to the settings store
//   - PressDetector: turns the sampled setting button into short and long presses
//
// Entering the wizard erases the stored settings first, so an abandoned
// wizard leaves the regulator uncalibrated rather than half-updated.
package calibration
