// Package codec implements the authenticated datagram format used between
// clients and storage daemons: AES-128 in a single-block-encrypt
// construction keyed by an explicit per-message counter, plus an
// HMAC-SHA256 tag over the whole frame.
//
// This is deliberately not a textbook AEAD. It exists so that a client can
// secure a request to a daemon it has never talked to before, using only
// key material handed out by the control plane, in a single UDP datagram
// with no handshake. The counter, verified by the daemon to never
// decrease, is what stands in for freshness/replay protection that a
// handshake would normally provide.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

const (
	blockSize = 16
	macSize   = 32
)

// ErrMalformedDatagram is returned by Decrypt for any frame that is too
// short, the wrong length, fails MAC verification, or carries a counter
// below the caller's floor. The cases are deliberately not distinguished:
// callers must not be able to tell an authentication failure from a replay
// from a truncated packet, since that channel could be used to probe keys.
var ErrMalformedDatagram = errors.New("codec: malformed or unauthenticated datagram")

// KeyPair holds the two keys used to secure one direction of traffic: an
// AES-128 key for confidentiality and an HMAC-SHA256 key for integrity.
// Both are distributed out of band by the control plane; KeyPair never
// generates or persists them itself.
type KeyPair struct {
	MACKey     [16]byte
	EncryptKey [16]byte
}

// cipherBlock produces the AES-128 keystream block for one counter value.
// The counter is written into the low 4 bytes of an all-zero block in
// little-endian order and the whole block is run through a single AES
// block encryption; this is intentionally not the same construction as
// crypto/cipher's CTR stream (which increments the block as a big-endian
// integer across the whole block width) and must not be replaced by it.
func cipherBlock(block cipher.Block, counter uint32) [blockSize]byte {
	var in [blockSize]byte
	in[0] = byte(counter)
	in[1] = byte(counter >> 8)
	in[2] = byte(counter >> 16)
	in[3] = byte(counter >> 24)
	var out [blockSize]byte
	block.Encrypt(out[:], in[:])
	return out
}

func xorBlock(dst []byte, src [blockSize]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// Encrypt authenticates and encrypts data, starting from the given
// counter value. It returns the wire frame and the counter value to use
// for the next message sent under this key pair (never reused, never
// decreased). The frame layout is:
//
//	initial counter (4 bytes, big-endian)
//	ceil((4+len(data))/16) * 16 bytes of ciphertext, the first 4 bytes of
//	  which (once decrypted) hold the big-endian length of data
//	32-byte HMAC-SHA256 tag over everything before it
func (k *KeyPair) Encrypt(data []byte, counter uint32) ([]byte, uint32, error) {
	block, err := aes.NewCipher(k.EncryptKey[:])
	if err != nil {
		return nil, 0, err
	}

	result := make([]byte, 0, 4+len(data)+2*blockSize+macSize)

	var initialCounter [4]byte
	binary.BigEndian.PutUint32(initialCounter[:], counter)
	result = append(result, initialCounter[:]...)

	var first [blockSize]byte
	binary.BigEndian.PutUint32(first[0:4], uint32(len(data)))
	rest := min(len(data), blockSize-4)
	copy(first[4:4+rest], data[:rest])
	xorBlock(first[:], cipherBlock(block, counter))
	counter++
	result = append(result, first[:]...)
	pos := rest

	for pos < len(data) {
		n := min(len(data)-pos, blockSize)
		var b [blockSize]byte
		copy(b[:n], data[pos:pos+n])
		xorBlock(b[:], cipherBlock(block, counter))
		counter++
		result = append(result, b[:]...)
		pos += n
	}

	mac := hmac.New(sha256.New, k.MACKey[:])
	mac.Write(result)
	result = mac.Sum(result)

	return result, counter, nil
}

// Decrypt authenticates and decrypts a wire frame, rejecting it unless its
// counter is at least minCounter. On success it returns the plaintext and
// the counter value the caller should require for the next message from
// this peer (always greater than the frame's own counter).
func (k *KeyPair) Decrypt(data []byte, minCounter uint32) ([]byte, uint32, error) {
	if len(data) < 4+blockSize+macSize {
		return nil, 0, ErrMalformedDatagram
	}
	if len(data)%blockSize != (4+macSize)%blockSize {
		return nil, 0, ErrMalformedDatagram
	}

	mac := hmac.New(sha256.New, k.MACKey[:])
	mac.Write(data[:len(data)-macSize])
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, data[len(data)-macSize:]) {
		return nil, 0, ErrMalformedDatagram
	}

	counter := binary.BigEndian.Uint32(data[0:4])
	if counter < minCounter {
		return nil, 0, ErrMalformedDatagram
	}

	block, err := aes.NewCipher(k.EncryptKey[:])
	if err != nil {
		return nil, 0, err
	}

	var first [blockSize]byte
	copy(first[:], data[4:4+blockSize])
	xorBlock(first[:], cipherBlock(block, counter))
	counter++

	length := int(binary.BigEndian.Uint32(first[0:4]))
	result := make([]byte, 0, length)
	copyLen := min(length, blockSize-4)
	result = append(result, first[4:4+copyLen]...)
	remaining := length - copyLen
	pos := 4 + blockSize

	for remaining > 0 {
		if pos+blockSize > len(data)-macSize {
			return nil, 0, ErrMalformedDatagram
		}
		var b [blockSize]byte
		copy(b[:], data[pos:pos+blockSize])
		pos += blockSize
		xorBlock(b[:], cipherBlock(block, counter))
		counter++
		copyLen := min(remaining, blockSize)
		result = append(result, b[:copyLen]...)
		remaining -= copyLen
	}

	if len(data)-pos != macSize {
		return nil, 0, ErrMalformedDatagram
	}

	return result, counter, nil
}
