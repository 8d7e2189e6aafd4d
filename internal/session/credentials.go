package session

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/2beens/healthtracker/pkg"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CredentialSchemePlain keeps the secret as given. It matches how the original app
	// stored credentials and exists for compatibility with such catalogs only.
	CredentialSchemePlain  = "plain"
	CredentialSchemeBcrypt = "bcrypt"
)

// Hasher turns a secret into the credential stored in the catalog and verifies it later.
type Hasher interface {
	Scheme() string
	Hash(secret string) (string, error)
	Matches(secret, credential string) bool
}

var (
	_ Hasher = (*PlainHasher)(nil)
	_ Hasher = (*BcryptHasher)(nil)
)

type PlainHasher struct{}

func (PlainHasher) Scheme() string {
	return CredentialSchemePlain
}

func (PlainHasher) Hash(secret string) (string, error) {
	return secret, nil
}

func (PlainHasher) Matches(secret, credential string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(credential)) == 1
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = pkg.DefaultPasswordHashCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Scheme() string {
	return CredentialSchemeBcrypt
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	hash, err := pkg.HashPassword(secret, h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", invalidRequestErr("password longer than %d bytes", MaxPasswordBytes)
		}
		return "", err
	}
	return hash, nil
}

func (h *BcryptHasher) Matches(secret, credential string) bool {
	return pkg.CheckPasswordHash(secret, credential)
}

// NewHasher builds the hasher for the configured credential scheme.
func NewHasher(scheme string, bcryptCost int) (Hasher, error) {
	switch scheme {
	case CredentialSchemePlain:
		return PlainHasher{}, nil
	case CredentialSchemeBcrypt, "":
		return NewBcryptHasher(bcryptCost), nil
	}
	return nil, fmt.Errorf("unknown credential scheme [%s]", scheme)
}
