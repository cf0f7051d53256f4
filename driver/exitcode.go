package driver

import (
	"errors"

	"github.com/guestbox/guestbox/wasienv"
)

// Normalize maps a guest run outcome to its final result and canonical exit
// code. Calling exit(0) inside a guest technically raises the explicit exit
// signal with a code of zero, but the end user must not see that as an
// error, so it is rewritten to a plain success.
func Normalize(err error) (error, wasienv.ExitCode) {
	if err == nil {
		return nil, wasienv.ExitCodeSuccess
	}
	var exit *wasienv.ExitError
	if errors.As(err, &exit) {
		if exit.Code.IsSuccess() {
			return nil, wasienv.ExitCodeSuccess
		}
		return err, exit.Code
	}
	return err, wasienv.ExitCodeNoexec
}
