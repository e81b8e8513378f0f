package codec

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadKeyPairFile reads a 64-character hex-encoded key file (32 raw
// bytes: the MAC key followed by the encrypt key) into a KeyPair. Every
// daemon and client in a cluster is configured with the same file out of
// band; there is no key-exchange protocol here, matching the rest of the
// codec's "no handshake" design.
func LoadKeyPairFile(path string) (KeyPair, error) {
	var kp KeyPair

	raw, err := os.ReadFile(path)
	if err != nil {
		return kp, fmt.Errorf("codec: read key file: %w", err)
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return kp, fmt.Errorf("codec: key file is not valid hex: %w", err)
	}
	if len(decoded) != len(kp.MACKey)+len(kp.EncryptKey) {
		return kp, fmt.Errorf("codec: key file must decode to %d bytes (MAC key || encrypt key), got %d",
			len(kp.MACKey)+len(kp.EncryptKey), len(decoded))
	}

	copy(kp.MACKey[:], decoded[:len(kp.MACKey)])
	copy(kp.EncryptKey[:], decoded[len(kp.MACKey):])
	return kp, nil
}
