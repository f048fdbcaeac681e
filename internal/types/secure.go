package types

// redactedPlaceholder replaces secret values in logs and serialized output.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (API keys, webhook secrets, database
// URLs). It overrides String() and MarshalJSON() to return a redacted
// placeholder so secrets never leak through fmt functions or JSON output.
//
// Use Unmask() to retrieve the raw plaintext when it is genuinely needed,
// e.g. when constructing an Authorization header.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to the call sites that actually hand the value to a client or
// driver.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether the secret has a non-empty value. Handlers that
// depend on an optional provider key use this to return a structured
// "provider not configured" error instead of crashing.
func (s SecretString) IsSet() bool {
	return len(s) > 0
}
