package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (no workspace, invalid config, preflight failure)
	ExitDataError   = 3 // Data error (malformed input, validation failure)
	ExitIncomplete  = 4 // Run finished, but some entities or DOIs need a re-run
	ExitInterrupted = 130
)
