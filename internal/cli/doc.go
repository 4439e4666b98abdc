// Package cli turns the bakegrid command line into a Command: it picks the
// subcommand (run, cleanup or status), validates the log flags and fills an
// app.Config. Usage problems come back as an ExitError carrying exit code 2.
package cli
