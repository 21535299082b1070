package model

import (
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// KeyPair holds the base64 encoded wireguard keys of a server or a client
type KeyPair struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

// GenerateKeyPair creates a fresh curve25519 key pair.
// It panics when the system random source fails.
func GenerateKeyPair() KeyPair {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		panic(fmt.Sprintf("cannot generate wireguard key pair: %v", err))
	}
	return KeyPair{
		Private: key.String(),
		Public:  key.PublicKey().String(),
	}
}

// Validate checks that both keys decode and that the public key matches the private one
func (k KeyPair) Validate() error {
	priv, err := wgtypes.ParseKey(k.Private)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	pub, err := wgtypes.ParseKey(k.Public)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if priv.PublicKey() != pub {
		return fmt.Errorf("public key does not match private key")
	}
	return nil
}
