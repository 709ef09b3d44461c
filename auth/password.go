package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// dummyHash is compared against when the user does not exist, so a failed
// login costs the same whether or not the username is taken.
var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("not-a-real-password")
	if err != nil {
		panic("auth: cannot compute dummy hash: " + err.Error())
	}
	return hash
})
