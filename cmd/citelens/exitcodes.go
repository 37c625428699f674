package main

// Exit codes. Per-document failures during a run do not change the exit code.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, unreadable folder, failed document in classify)
	ExitConfigError = 2 // Configuration error (missing key or target title, bad values)
	ExitWriteError  = 3 // Output table could not be written
)
