// Package configuration resolves free-form broker connection strings
// into fully validated, defaulted connection configurations.
//
// Resolution is batch-validating: every malformed, missing, or removed
// option in the connection string is collected and reported together,
// so a single resolution attempt surfaces everything that needs fixing.
// A configuration value is only constructed once the whole string has
// validated; callers never observe partially applied state.
package configuration
