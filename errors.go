package ledgergate

import "errors"

var (
	// ErrBuilderUsed is returned by a second call to Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrNavigationDenied is returned by Navigate when the guard denies the
	// destination. No navigation happened.
	ErrNavigationDenied = errors.New("navigation denied")
	// ErrRedirectLoop is returned when route redirects do not settle.
	ErrRedirectLoop = errors.New("too many navigation redirects")
	// ErrLoginResponse is returned when a successful login response carries no
	// usable credential.
	ErrLoginResponse = errors.New("malformed login response")
	ErrClosed        = errors.New("client closed")
)
