// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seal

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

const (
	pkixHeader  = "-----BEGIN PUBLIC KEY-----"
	pkcs1Header = "-----BEGIN RSA PUBLIC KEY-----"

	// pkcs1Overhead is the minimum padding PKCS#1 v1.5 adds to a block.
	pkcs1Overhead = 11
)

var (
	// ErrUnrecognizedKey means the key text starts with none of the
	// recognized headers.
	ErrUnrecognizedKey = errors.New("unrecognized public key format")

	// ErrMalformedKey means the header was recognized but the key
	// could not be parsed.
	ErrMalformedKey = errors.New("malformed public key")

	// ErrPlaintextTooLarge means the credential does not fit the key.
	ErrPlaintextTooLarge = errors.New("plaintext too large for key")
)

// Error is a sealing failure. Err is one of the sentinels above or the
// underlying encryption error.
type Error struct {
	Format string
	Err    error
}

func (e *Error) Error() string {
	if e.Format == "" {
		return "seal: " + e.Err.Error()
	}
	return fmt.Sprintf("seal (%s): %s", e.Format, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format identifies a session key encoding.
type Format string

const (
	FormatPKIX  Format = "pkix"
	FormatPKCS1 Format = "pkcs1"
)

// DetectFormat returns the key encoding indicated by the leading text
// of key, ignoring leading whitespace.
func DetectFormat(key []byte) (Format, bool) {
	trimmed := bytes.TrimLeft(key, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte(pkixHeader)):
		return FormatPKIX, true
	case bytes.HasPrefix(trimmed, []byte(pkcs1Header)):
		return FormatPKCS1, true
	}
	return "", false
}

// HasRecognizedHeader reports whether key starts with one of the two
// RSA PEM headers.
func HasRecognizedHeader(key []byte) bool {
	_, ok := DetectFormat(key)
	return ok
}

// Sealer encrypts credentials. The zero value uses crypto/rand.
type Sealer struct {
	// Random is the entropy source for padding. Nil means crypto/rand.
	Random io.Reader
}

// Seal encrypts plaintext to an RSA session key. The result is one
// block the size of the modulus. The plaintext is only read.
func (s *Sealer) Seal(plaintext, key []byte) ([]byte, error) {
	format, ok := DetectFormat(key)
	if !ok {
		return nil, &Error{Err: ErrUnrecognizedKey}
	}
	publicKey, err := ParseRSAPublicKey(key)
	if err != nil {
		return nil, err
	}
	return s.sealRSA(format, plaintext, publicKey)
}

// Seal encrypts with a zero-value Sealer.
func Seal(plaintext, key []byte) ([]byte, error) {
	var sealer Sealer
	return sealer.Seal(plaintext, key)
}

// MaxPlaintext returns the credential length limit for an RSA key.
// Plaintexts of this length or longer are rejected.
func MaxPlaintext(key *rsa.PublicKey) int {
	return key.Size() - pkcs1Overhead
}

// ParseRSAPublicKey decodes a PKIX or PKCS#1 PEM RSA public key.
func ParseRSAPublicKey(key []byte) (*rsa.PublicKey, error) {
	format, ok := DetectFormat(key)
	if !ok {
		return nil, &Error{Err: ErrUnrecognizedKey}
	}

	block, _ := pem.Decode(key)
	if block == nil {
		return nil, &Error{Format: string(format), Err: fmt.Errorf("%w: no PEM block", ErrMalformedKey)}
	}

	switch format {
	case FormatPKCS1:
		publicKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, &Error{Format: string(format), Err: fmt.Errorf("%w: %v", ErrMalformedKey, err)}
		}
		return publicKey, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, &Error{Format: string(format), Err: fmt.Errorf("%w: %v", ErrMalformedKey, err)}
		}
		publicKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, &Error{Format: string(format), Err: fmt.Errorf("%w: %T is not an RSA key", ErrMalformedKey, parsed)}
		}
		return publicKey, nil
	}
}

func (s *Sealer) sealRSA(format Format, plaintext []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	if limit := MaxPlaintext(publicKey); len(plaintext) >= limit {
		return nil, &Error{
			Format: string(format),
			Err:    fmt.Errorf("%w: %d bytes, limit is below %d", ErrPlaintextTooLarge, len(plaintext), limit),
		}
	}
	ciphertext, err := rsa.EncryptPKCS1v15(s.random(), publicKey, plaintext)
	if err != nil {
		return nil, &Error{Format: string(format), Err: err}
	}
	return ciphertext, nil
}

func (s *Sealer) random() io.Reader {
	if s.Random != nil {
		return s.Random
	}
	return rand.Reader
}

// Fingerprint is a short, stable identifier of a public key for logs:
// the first 8 bytes of its BLAKE3 hash, hex encoded.
func Fingerprint(key []byte) string {
	sum := blake3.Sum256(bytes.TrimSpace(key))
	return hex.EncodeToString(sum[:8])
}
