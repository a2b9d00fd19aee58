package services

// PasswordHasher defines an interface for hashing and verifying passwords.
// It is pure and performs no I/O.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}
