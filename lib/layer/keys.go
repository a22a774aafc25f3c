package layer

import (
	"crypto/sha256"
	"io"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every hop key.
const KeySize = 32

// Keys is the key material shared between the client and one hop.
type Keys struct {
	Forward        [KeySize]byte
	Backward       [KeySize]byte
	ForwardDigest  [KeySize]byte
	BackwardDigest [KeySize]byte
}

// DeriveKeys expands a shared secret into hop keys with HKDF-SHA256.
func DeriveKeys(secret []byte) (Keys, error) {
	var k Keys
	r := hkdf.New(sha256.New, secret, nil, []byte("go-circuit hop keys"))
	for _, dst := range [][]byte{k.Forward[:], k.Backward[:], k.ForwardDigest[:], k.BackwardDigest[:]} {
		if _, err := io.ReadFull(r, dst); err != nil {
			return Keys{}, circerr.Bugf("layer", "hkdf expand: %v", err)
		}
	}
	return k, nil
}
