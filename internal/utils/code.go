package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	verificationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	otpDigits            = "0123456789"
)

// VerificationCode returns a random alphanumeric code of the given length,
// used for email verification and password resets.
func VerificationCode(length int) (string, error) {
	return randomFrom(verificationAlphabet, length)
}

// NumericOTP returns a random numeric one-time password of the given length,
// used for phone verification over SMS.
func NumericOTP(length int) (string, error) {
	return randomFrom(otpDigits, length)
}

// OAuthPhonePlaceholder returns a unique placeholder for the phone_number
// column of OAuth signups, which have no verified phone.  The prefix keeps
// placeholders recognisable and out of the real number space.
func OAuthPhonePlaceholder() string {
	return "oauth_" + uuid.NewString()[:10]
}

func randomFrom(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
