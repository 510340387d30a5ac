// Package sealcred implements the operator tool that seals an upstream
// password for the upstream_connections table.
package sealcred

import (
	"bufio"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/cryptox"
	"golang.org/x/term"
)

// KeyEnv is consulted when -k is not given.
const KeyEnv = "NOC_CREDENTIAL_KEY"

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// Run parses args, reads the password and writes the three hex columns to
// stdout. Prompts go to stderr so stdout can be redirected.
func Run(args []string, stdin *os.File, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sealcred", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("k", os.Getenv(KeyEnv), "credential key (64 hex chars or passphrase)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("credential key required: pass -k or set %s", KeyEnv)
	}

	password, err := readSecret(stdin, stderr)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	return Seal(stdout, string(password), *key)
}

// Seal encrypts password under the key derived from secret and prints the
// column values.
func Seal(w io.Writer, password, secret string) error {
	if password == "" {
		return errors.New("empty password")
	}
	ciphertext, iv, tag, err := cryptox.EncryptCredential(password, cryptox.DeriveKey(secret))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "password_ciphertext=%s\npassword_iv=%s\npassword_tag=%s\n",
		hex.EncodeToString(ciphertext), hex.EncodeToString(iv), hex.EncodeToString(tag))
	return err
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func readSecret(stdin *os.File, prompt io.Writer) ([]byte, error) {
	fd := int(stdin.Fd())
	if isTerminal(fd) {
		fmt.Fprint(prompt, "Upstream password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(prompt)
		return pw, err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
