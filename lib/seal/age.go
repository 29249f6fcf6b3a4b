// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seal

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/authbridge/lib/secret"
)

const fileFormat = "age"

// EncryptFile encrypts plaintext to one or more age X25519 recipients
// (age1... strings) and returns ASCII-armored ciphertext suitable for a
// file on disk. The plaintext is only read.
func EncryptFile(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, &Error{Format: fileFormat, Err: fmt.Errorf("at least one recipient is required")}
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, &Error{Format: fileFormat, Err: fmt.Errorf("%w: %v", ErrMalformedKey, err)}
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	armored := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, &Error{Format: fileFormat, Err: err}
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, &Error{Format: fileFormat, Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Format: fileFormat, Err: err}
	}
	if err := armored.Close(); err != nil {
		return nil, &Error{Format: fileFormat, Err: err}
	}
	return ciphertext.Bytes(), nil
}

// DecryptFile decrypts an age file, armored or binary, with the
// identities in identityText (the contents of an age key file). The
// identity buffer is borrowed. The caller closes the returned buffer.
func DecryptFile(ciphertext []byte, identityText *secret.Buffer) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(bytes.NewReader(identityText.Bytes()))
	if err != nil {
		return nil, &Error{Format: fileFormat, Err: fmt.Errorf("%w: %v", ErrMalformedKey, err)}
	}

	var source io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimLeft(ciphertext, " \t\r\n"), []byte(armor.Header)) {
		source = armor.NewReader(bytes.NewReader(bytes.TrimLeft(ciphertext, " \t\r\n")))
	}
	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, &Error{Format: fileFormat, Err: err}
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, &Error{Format: fileFormat, Err: err}
	}
	if len(plaintext) == 0 {
		return nil, &Error{Format: fileFormat, Err: fmt.Errorf("file decrypts to nothing")}
	}
	return secret.NewFromBytes(plaintext)
}
