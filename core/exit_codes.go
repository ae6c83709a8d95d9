package core

// Process exit codes. Signal exits follow the 128+signal convention.
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeConfigError = 2
	ExitCodeSIGINT      = 130
	ExitCodeSIGTERM     = 143
)

// ExitCodeForError picks the exit code for a startup failure.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if _, ok := IsConfigError(err); ok {
		return ExitCodeConfigError
	}
	return ExitCodeError
}
