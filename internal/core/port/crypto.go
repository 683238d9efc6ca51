package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicy checks a password candidate. A non-nil error rejects it;
// warnings are advisory codes that never block acceptance.
type PasswordPolicy interface {
	Check(password string, userInputs []string) (warnings []string, err error)
}
