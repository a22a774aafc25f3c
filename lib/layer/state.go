package layer

import (
	"encoding"
	"hash"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

// TagLen is the length of a digest snapshot, and so of a SENDME tag.
const TagLen = 20

const (
	recognizedOff = 1
	digestOff     = 5
	digestLen     = 4
)

// direction is one direction of one hop: a keystream and a running digest.
type direction struct {
	cipher *chacha20.Cipher
	digest hash.Hash
}

func newDirection(key, digestKey [KeySize]byte) (*direction, error) {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, circerr.Bugf("layer", "chacha20: %v", err)
	}
	// The digest is seeded with its key rather than keyed, so that it can
	// be snapshotted while checking whether a cell is recognized.
	d, err := blake2b.New(TagLen, nil)
	if err != nil {
		return nil, circerr.Bugf("layer", "blake2b: %v", err)
	}
	d.Write(digestKey[:])
	return &direction{cipher: c, digest: d}, nil
}

func (d *direction) crypt(cell relay.Cell) {
	d.cipher.XORKeyStream(cell, cell)
}

// stamp folds cell into the running digest, writes the short digest into
// the header and returns the full snapshot.
func (d *direction) stamp(cell relay.Cell) []byte {
	clear(cell[digestOff : digestOff+digestLen])
	d.digest.Write(cell)
	tag := d.digest.Sum(nil)
	copy(cell[digestOff:digestOff+digestLen], tag)
	return tag
}

// recognize checks whether a decrypted cell is addressed to this hop. On a
// match the cell is folded into the running digest and the snapshot is
// returned; otherwise the digest is left untouched.
func (d *direction) recognize(cell relay.Cell) ([]byte, bool, error) {
	if cell[recognizedOff] != 0 || cell[recognizedOff+1] != 0 {
		return nil, false, nil
	}
	m, ok := d.digest.(encoding.BinaryMarshaler)
	if !ok {
		return nil, false, circerr.Bugf("layer", "digest cannot be snapshotted")
	}
	saved, err := m.MarshalBinary()
	if err != nil {
		return nil, false, circerr.Bugf("layer", "digest snapshot: %v", err)
	}
	var got [digestLen]byte
	copy(got[:], cell[digestOff:digestOff+digestLen])
	clear(cell[digestOff : digestOff+digestLen])
	d.digest.Write(cell)
	tag := d.digest.Sum(nil)
	if [digestLen]byte(tag[:digestLen]) == got {
		return tag, true, nil
	}
	copy(cell[digestOff:digestOff+digestLen], got[:])
	if err := d.digest.(encoding.BinaryUnmarshaler).UnmarshalBinary(saved); err != nil {
		return nil, false, circerr.Bugf("layer", "digest restore: %v", err)
	}
	return nil, false, nil
}
