package main

import "crushstore/internal/codec"

func loadKeyPair(path string) (codec.KeyPair, error) {
	return codec.LoadKeyPairFile(path)
}
