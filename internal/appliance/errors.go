package appliance

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package and by the status
// aggregator wraps exactly one of these.
var (
	// ErrConfiguration means a required configuration value is missing or
	// invalid. It is detected before any network activity and is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection means the appliance could not be reached, or a timeout
	// occurred while connecting or selecting the context.
	ErrConnection = errors.New("connection error")

	// ErrAuthentication means the appliance rejected the credentials.
	ErrAuthentication = errors.New("authentication error")

	// ErrCommand means an open session failed mid-protocol (drop, timeout,
	// cancellation). The session is unusable afterwards.
	ErrCommand = errors.New("command error")

	// ErrParse means a response could not be interpreted at all.
	ErrParse = errors.New("parse error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrConfiguration, "configuration"},
	{ErrAuthentication, "authentication"},
	{ErrConnection, "connection"},
	{ErrCommand, "command"},
	{ErrParse, "parse"},
}

// Wrap annotates err with an operation name and an error kind. The result
// matches both kind and err under errors.Is.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Kind returns the sentinel kind err was wrapped with, or nil if it carries
// none.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// KindName returns a short lowercase name for the kind of err ("connection",
// "authentication", ...), or "unknown".
func KindName(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
