// Package password wraps credential hashing so the service layer never
// touches the hash format directly.
package password

import "golang.org/x/crypto/bcrypt"

// Hash derives a storable hash from a plaintext password.
func Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Compare reports whether plain matches the stored hash.
func Compare(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
