package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"crowdsale/cmd/internal/passphrase"
	"crowdsale/crypto"
	"crowdsale/gateway/auth"
)

const defaultKeystore = "investor.keystore"

var (
	saleNow     = time.Now
	newNonce    = uuid.NewString
	keyPassword = func() (string, error) { return passphrase.NewSource(passphraseEnv, "investor keystore").Get() }
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	path := fs.String("keystore", defaultKeystore, "Path of the keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists; refusing to overwrite\n", *path)
		return 1
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pass, err := keyPassword()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error saving keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", *path)
	fmt.Fprintf(stdout, "Your account is: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", defaultKeystore, "Path of the investor keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	account, err := crypto.KeystoreAccount(*path)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading keystore: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, crypto.FormatAccount(account))
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Error: status takes no arguments")
		return 1
	}
	raw, err := callAPI(http.MethodGet, "/v1/sale", nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching sale: %v\n", err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}

func runInvestor(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: Please provide an account.")
		return 1
	}
	account, err := crypto.ParseAccount(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	raw, err := callAPI(http.MethodGet, "/v1/investors/"+url.PathEscape(crypto.FormatAccount(account)), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching investor: %v\n", err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}

// runSettle signs a withdraw or refund request with the investor keystore and
// submits it. The gateway treats the recovered signer as the investor.
func runSettle(action string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(action, stderr)
	path := fs.String("keystore", defaultKeystore, "Path of the investor keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 1
	}
	pass, err := keyPassword()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading keystore: %v\n", err)
		return 1
	}
	req, err := auth.SignRequest(key, action, newNonce(), saleNow().Unix())
	if err != nil {
		fmt.Fprintf(stderr, "Error signing request: %v\n", err)
		return 1
	}
	raw, err := callAPI(http.MethodPost, "/v1/"+action, req)
	if err != nil {
		fmt.Fprintf(stderr, "Error submitting %s: %v\n", action, err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}
