package codec

import (
	"bytes"
	"encoding/hex"
	"testing"
)

const goldenMessage = "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Maecenas " +
	"est purus, sagittis eu cursus sed, ullamcorper sed nibh. Mauris " +
	"quis aliquam leo. Integer porttitor sapien orci, sed semper ex " +
	"elementum maximus."

func testKeyPair() *KeyPair {
	kp := &KeyPair{}
	for i := 0; i < 16; i++ {
		kp.MACKey[i] = byte(i + 1)
		kp.EncryptKey[i] = byte((i + 1) * 2)
	}
	return kp
}

func rawGoldenCiphertext(t *testing.T) []byte {
	t.Helper()
	hexDigits := "00000004" +
		"6c25f28966b24b307296f5b676dc764116da5a7754eec32c5909e42f7c954ef0" +
		"e5a7bced5942db7ccf636a01981873ce69368c4ab57ce3fb8dc678683b4a18de" +
		"82162d5a38b9a4131768f716e0127b60de828a0c3158198e62a8a8c64b72b1bb" +
		"f877ffcfa2f7a121b7a58e648b5fe56b49f914c8b54d6e1a87b62765f68cfe33" +
		"c94a25eb9b15c5b86bd01f60c284334bd343bb76da0553b23c0f6f4c347c4cbd" +
		"579060f7be1f0fa47dc4b25d885937604e119f0e77bf1fb15ac9ed3fdedcf407" +
		"6cecbda9e87d8ffe8178a4df4ac96d49dc1511956840de9b6ee91bc2dae4742b" +
		"f54d3ca0765defab125be16f626b85208250c55589e413c0861a8cf42da73fd4"
	b, err := hex.DecodeString(hexDigits)
	if err != nil {
		t.Fatalf("malformed golden hex: %v", err)
	}
	return b
}

func TestEncryptGoldenVector(t *testing.T) {
	kp := testKeyPair()
	message := []byte(goldenMessage)
	if len(message) != 211 {
		t.Fatalf("golden message length = %d, want 211", len(message))
	}

	result, counter, err := kp.Encrypt(message, 4)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if counter != 18 {
		t.Fatalf("counter = %d, want 18", counter)
	}
	if len(result) != 4+14*blockSize+macSize {
		t.Fatalf("result length = %d, want %d", len(result), 4+14*blockSize+macSize)
	}

	want := rawGoldenCiphertext(t)
	if !bytes.Equal(result, want) {
		t.Fatalf("ciphertext mismatch:\n got: %x\nwant: %x", result, want)
	}
}

func TestDecryptGoldenVector(t *testing.T) {
	kp := testKeyPair()
	ciphertext := rawGoldenCiphertext(t)

	result, counter, err := kp.Decrypt(ciphertext, 3)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if counter != 18 {
		t.Fatalf("counter = %d, want 18", counter)
	}
	if string(result) != goldenMessage {
		t.Fatalf("plaintext mismatch:\n got: %q\nwant: %q", result, goldenMessage)
	}
}

func TestDecryptRoundTrip(t *testing.T) {
	kp := testKeyPair()
	for _, n := range []int{0, 1, 12, 13, 16, 28, 200, 211, 4096} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		ciphertext, nextCounter, err := kp.Encrypt(data, 1)
		if err != nil {
			t.Fatalf("Encrypt(n=%d): %v", n, err)
		}
		plain, counter, err := kp.Decrypt(ciphertext, 0)
		if err != nil {
			t.Fatalf("Decrypt(n=%d): %v", n, err)
		}
		if counter != nextCounter {
			t.Fatalf("n=%d: decrypt counter = %d, want %d", n, counter, nextCounter)
		}
		if !bytes.Equal(plain, data) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestDecryptRejectsTamperedMAC(t *testing.T) {
	kp := testKeyPair()
	ciphertext, _, err := kp.Encrypt([]byte("hello world"), 1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF
	if _, _, err := kp.Decrypt(ciphertext, 0); err != ErrMalformedDatagram {
		t.Fatalf("Decrypt of tampered frame: err = %v, want ErrMalformedDatagram", err)
	}
}

func TestDecryptRejectsReplayedCounter(t *testing.T) {
	kp := testKeyPair()
	ciphertext, nextCounter, err := kp.Encrypt([]byte("hello world"), 5)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, _, err := kp.Decrypt(ciphertext, nextCounter); err != ErrMalformedDatagram {
		t.Fatalf("Decrypt with floor above frame counter: err = %v, want ErrMalformedDatagram", err)
	}
}

func TestDecryptRejectsShortFrame(t *testing.T) {
	kp := testKeyPair()
	if _, _, err := kp.Decrypt([]byte{1, 2, 3}, 0); err != ErrMalformedDatagram {
		t.Fatalf("Decrypt of short frame: err = %v, want ErrMalformedDatagram", err)
	}
}

func TestDecryptRejectsWrongLength(t *testing.T) {
	kp := testKeyPair()
	ciphertext, _, err := kp.Encrypt([]byte("hello world"), 1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, _, err := kp.Decrypt(ciphertext[:len(ciphertext)-1], 0); err != ErrMalformedDatagram {
		t.Fatalf("Decrypt of truncated frame: err = %v, want ErrMalformedDatagram", err)
	}
}
