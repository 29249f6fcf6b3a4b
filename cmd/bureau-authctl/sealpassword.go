// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/authbridge/lib/seal"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

func runSealPassword(args []string, stdout io.Writer) error {
	var (
		recipients   []string
		output       string
		passwordFile string
	)
	flags := newFlags("seal-password")
	flags.StringArrayVarP(&recipients, "recipient", "r", nil, "age recipient (age1...) to encrypt to; repeatable")
	flags.StringVarP(&output, "output", "o", "", "write the encrypted file here instead of stdout")
	flags.StringVar(&passwordFile, "password-file", "", `read the password from this plaintext file instead of the terminal ("-" for the terminal)`)
	if _, err := parseFlags(flags, args, "--recipient <age1...>", 0, 0); err != nil {
		return err
	}
	if len(recipients) == 0 {
		return fmt.Errorf("--recipient is required")
	}

	credential, err := newPasswordReader(passwordFile, "")("Password: ")
	if err != nil {
		return err
	}
	defer credential.Close()

	if output == "" {
		return sealPassword(stdout, credential, recipients)
	}
	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := sealPassword(file, credential, recipients); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// sealPassword writes credential, age-encrypted to recipients, to w.
// The result is what login --password-file --identity reads.
func sealPassword(w io.Writer, credential *secret.Buffer, recipients []string) error {
	ciphertext, err := seal.EncryptFile(credential.Bytes(), recipients)
	if err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}
