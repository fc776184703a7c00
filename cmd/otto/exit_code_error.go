package main

// Process exit codes for scripts driving the CLI.
const (
	exitOK          = 0
	exitFailure     = 1
	exitValidation  = 2
	exitUnavailable = 3
	exitCancelled   = 130
)

// ExitCodeError wraps an error with a specific process exit code. Most
// commands return plain errors and exit 1; this is only for the stable
// non-1 codes scripts depend on.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func exitErr(code int, err error) *ExitCodeError {
	return &ExitCodeError{Code: code, Err: err}
}
