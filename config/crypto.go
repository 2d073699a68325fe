// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/juju/errors"
	"golang.org/x/crypto/pbkdf2"
)

// The encrypted configuration is the OpenSSL enc container: the "Salted__"
// magic, an 8 byte salt, then AES-256-CBC ciphertext. The key and IV are
// derived with PBKDF2-SHA256, matching
//
//	openssl enc -aes-256-cbc -pbkdf2 -in noderig.conf
//
// so a configuration can be recovered with stock openssl if need be.
const (
	opensslMagic = "Salted__"
	saltLen      = 8
	kdfIter      = 10000
	keyLen       = 32
	ivLen        = aes.BlockSize
)

// IsEncrypted reports whether data is an encrypted configuration.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(opensslMagic))
}

// Encrypt seals plaintext with the given passphrase.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.NotValidf("empty passphrase")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Trace(err)
	}
	block, iv, err := deriveCipher(passphrase, salt)
	if err != nil {
		return nil, errors.Trace(err)
	}

	padded := pad(plaintext)
	out := make([]byte, 0, len(opensslMagic)+saltLen+len(padded))
	out = append(out, opensslMagic...)
	out = append(out, salt...)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return append(out, ciphertext...), nil
}

// Decrypt opens data sealed by Encrypt. A wrong passphrase is reported as
// an error rather than returning garbage: the padding check catches it.
func Decrypt(data []byte, passphrase string) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, errors.NotValidf("unencrypted data")
	}
	rest := data[len(opensslMagic):]
	if len(rest) < saltLen {
		return nil, errors.NotValidf("truncated ciphertext")
	}
	salt, ciphertext := rest[:saltLen], rest[saltLen:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.NotValidf("ciphertext length %d", len(ciphertext))
	}
	block, iv, err := deriveCipher(passphrase, salt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	unpadded, err := unpad(plaintext)
	if err != nil {
		return nil, errors.Errorf("cannot decrypt configuration: wrong passphrase?")
	}
	return unpadded, nil
}

func deriveCipher(passphrase string, salt []byte) (cipher.Block, []byte, error) {
	derived := pbkdf2.Key([]byte(passphrase), salt, kdfIter, keyLen+ivLen, sha256.New)
	block, err := aes.NewCipher(derived[:keyLen])
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return block, derived[keyLen:], nil
}

// pad applies PKCS#7 padding.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.NotValidf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.NotValidf("padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.NotValidf("padding")
		}
	}
	return data[:len(data)-n], nil
}
