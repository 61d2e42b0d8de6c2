package cloud

import "errors"

// Sentinel errors for cloud lookups.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoInstance indicates Cloud Map has no registered instance for the service.
	ErrNoInstance = errors.New("no service instance registered")

	// ErrMissingAttribute indicates the registered instance lacks the
	// attribute holding the check state machine ARN.
	ErrMissingAttribute = errors.New("service instance attribute missing")

	// ErrSecretMissing indicates the secret has no string value.
	ErrSecretMissing = errors.New("secret value missing")

	// ErrSecretFieldMissing indicates the secret JSON lacks the requested field.
	ErrSecretFieldMissing = errors.New("secret field missing")
)
