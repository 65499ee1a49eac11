package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const passphraseEnv = "CROWDSALE_KEYSTORE_PASSPHRASE"

var (
	apiEndpoint = defaultAPIEndpoint() // Defaults to localhost, can be overridden via CROWDSALE_URL or --api flag
	httpClient  = &http.Client{Timeout: 15 * time.Second}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "status":
		return runStatus(args[1:], stdout, stderr)
	case "investor":
		return runInvestor(args[1:], stdout, stderr)
	case "withdraw":
		return runSettle("withdraw", args[1:], stdout, stderr)
	case "refund":
		return runSettle("refund", args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("CROWDSALE_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--api" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --api")
			}
			apiEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--api=") {
			apiEndpoint = strings.TrimPrefix(arg, "--api=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// callAPI issues a request against the gateway and returns the raw JSON body.
func callAPI(method, path string, body interface{}) (json.RawMessage, error) {
	endpoint, err := url.JoinPath(strings.TrimRight(apiEndpoint, "/"), path)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return nil, &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	return json.RawMessage(data), nil
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, out.String())
}

func usage() string {
	return strings.Join([]string{
		"Usage: crowdsale-cli [--api <url>] <command> [arguments]",
		"",
		"Commands:",
		"  generate-key [--keystore <path>]        - Creates an encrypted investor keystore",
		"  address --keystore <path>               - Prints the account held by a keystore",
		"  status                                  - Shows sale totals, rates and flags",
		"  investor <account>                      - Shows deposits and the settlement quote of an account",
		"  withdraw --keystore <path>              - Settles your position and claims purchased units",
		"  refund --keystore <path>                - Returns your contribution when you are not eligible",
		"",
		"The keystore passphrase is read from " + passphraseEnv + " or prompted for.",
	}, "\n")
}
