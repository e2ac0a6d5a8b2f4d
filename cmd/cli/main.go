// Command wk is the administrative CLI for the warranty service.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	grpcserver "github.com/and161185/warranty-keeper/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "warranty-keeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "warranty-keeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- login over HTTP ----

type loginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccountID   int64     `json:"account_id"`
}

func httpLogin(ctx context.Context, client *http.Client, baseURL, email, password string) (loginResult, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return loginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return loginResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return loginResult{}, fmt.Errorf("login: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out loginResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return loginResult{}, fmt.Errorf("login: decode: %w", err)
	}
	return out, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type dialOpts struct {
	addr       string
	caPath     string
	plaintext  bool
	skipVerify bool
}

func dial(o dialOpts, bearer string) (*grpc.ClientConn, *grpcserver.AdminClient, error) {
	var opts []grpc.DialOption
	if o.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(o.caPath, o.skipVerify)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	cc, err := grpc.NewClient(o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, grpcserver.NewAdminClient(cc), nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseIDs parses a comma-separated list of positive ids.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids given")
	}
	return ids, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `wk admin CLI
Usage:
  wk [-http URL] [-addr HOST:PORT] [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  login        -email <email> -password <password>     (saves token)
  get          -id <id> | -serial <serial>
  list         [-status s] [-owner id] [-sku s] [-serial s] [-sort col|-col] [-page n] [-size n]
  create       -sku s -serial s -date YYYY-MM-DD [-owner id] [-order ref] [-proof url] [-status s]
  update       -id <id> (same fields as create; replaces the record)
  set-status   -id <id> -status pending|approved|rejected
  mass-status  -ids 1,2,3 -status <status>              (synchronous)
  enqueue      -ids 1,2,3 -status <status>              (via message queue)
  expire       [-days n]
  rm           -id <id>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	httpURL := flag.String("http", "http://localhost:8080", "HTTP API base URL (login)")
	addr := flag.String("addr", "localhost:8443", "admin gRPC address")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "no TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("wk %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)
		if *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -email and -password")
			os.Exit(1)
		}
		res, err := httpLogin(ctx, http.DefaultClient, *httpURL, *email, *password)
		if err != nil {
			fail(err)
		}
		if err := saveToken(res.AccessToken, res.ExpiresAt); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		tok, err := loadToken()
		if err != nil {
			fail(err)
		}
		cc, cli, err := dial(dialOpts{addr: *addr, caPath: *caPath, plaintext: *plaintext, skipVerify: *skipVerify}, tok)
		if err != nil {
			fail(err)
		}
		defer cc.Close()
		if err := runAdmin(ctx, cli, cmd, args, os.Stdout); err != nil {
			if errors.Is(err, errUnknownCommand) {
				usage()
			}
			fail(err)
		}
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
