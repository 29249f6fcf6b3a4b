// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seal encrypts a credential to the public key of a remote
// authentication session, locally and before anything crosses the
// session boundary.
//
// Two key encodings are recognized by their leading text:
//
//   - "-----BEGIN PUBLIC KEY-----": PKIX (PKCS#8 SubjectPublicKeyInfo)
//     wrapping an RSA key
//   - "-----BEGIN RSA PUBLIC KEY-----": PKCS#1 RSA key
//
// Sealing uses PKCS#1 v1.5 padding and produces one ciphertext block
// the size of the modulus. A plaintext that does not fit is rejected,
// never truncated.
//
// Every failure is a [*Error]; callers must not fall back to sending the
// plaintext. [HasRecognizedHeader] lets a caller tell a key endpoint
// that is not ready yet (empty or garbage reply) from a real key.
//
// [EncryptFile] and [DecryptFile] are a separate, local scheme for
// keeping a credential at rest in an age-encrypted file. They never
// touch session keys, and an age recipient is not a session key.
package seal
