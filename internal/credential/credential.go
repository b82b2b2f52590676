// Package credential resolves every declared SecretSource into an
// immutable secrets[name][variable] -> string table at startup. Failure
// to resolve a declared source is fatal at startup.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rakunlabs/atgraph/internal/graph"
)

// Store is the immutable, post-startup secret table.
type Store struct {
	secrets map[string]map[string]string
}

// LookupVar resolves a secret by source name and variable name.
func (s *Store) LookupVar(name, variable string) (string, bool) {
	vars, ok := s.secrets[name]
	if !ok {
		return "", false
	}
	v, ok := vars[variable]
	return v, ok
}

// Lookup implements substitute.Environment: it resolves dotted
// "secrets.<name>.<var>" identifiers (the "$" is already stripped by the
// substitution scanner) and returns not-found for anything else, so a
// Store can be composed into the per-request environment directly.
func (s *Store) Lookup(identifier string) (string, bool) {
	const prefix = "secrets."
	if !strings.HasPrefix(identifier, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(identifier, prefix)
	name, variable, ok := strings.Cut(rest, ".")
	if !ok {
		return "", false
	}
	return s.LookupVar(name, variable)
}

// Load resolves every declared secret source. On any failure it returns
// an error describing every source that failed (aggregated, matching the
// loader's aggregation style) since this is a fatal startup condition the
// operator should see in full.
func Load(ctx context.Context, sources map[string]graph.SecretSource) (*Store, error) {
	store := &Store{secrets: make(map[string]map[string]string, len(sources))}
	var failures []string

	for name, src := range sources {
		vars, err := resolve(ctx, src)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		store.secrets[name] = vars
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("failed to resolve secret source(s): %s", strings.Join(failures, "; "))
	}

	return store, nil
}

func resolve(ctx context.Context, src graph.SecretSource) (map[string]string, error) {
	switch src.Kind {
	case graph.SecretEnvFile:
		return resolveEnvFile(src.EnvFile)
	case graph.SecretEnv:
		return resolveEnv(src.Env)
	case graph.SecretVault:
		return resolveVault(ctx, src.Vault)
	default:
		return nil, fmt.Errorf("unknown secret source kind %q", src.Kind)
	}
}

func resolveEnvFile(cfg *graph.EnvFileSource) (map[string]string, error) {
	path := expandHome(cfg.Path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file %s: %w", path, err)
	}
	defer f.Close()

	all, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}

	return allowListed(all, cfg.Variables), nil
}

func resolveEnv(cfg *graph.EnvSource) (map[string]string, error) {
	v, ok := os.LookupEnv(cfg.Variable)
	if !ok {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.Variable)
	}
	return map[string]string{cfg.Variable: v}, nil
}

// resolveVault performs the narrow fetch this secret source needs
// directly (one GET, one KV-v2 unwrap) rather than standing up a full
// hashicorp/vault/api client (see DESIGN.md).
func resolveVault(ctx context.Context, cfg *graph.VaultSource) (map[string]string, error) {
	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "VAULT_TOKEN"
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return nil, fmt.Errorf("vault token env %s is not set", tokenEnv)
	}

	url := strings.TrimRight(cfg.Address, "/") + "/v1/" + strings.TrimLeft(cfg.Path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", token)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("vault returned %d for %s: %s", resp.StatusCode, url, string(body))
	}

	var payload struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}

	all := make(map[string]string, len(payload.Data.Data))
	for k, v := range payload.Data.Data {
		if s, ok := v.(string); ok {
			all[k] = s
		}
	}

	resolved := allowListed(all, cfg.Variables)
	if len(resolved) == 0 {
		slog.Warn("vault secret source resolved zero variables", "path", cfg.Path)
	}
	return resolved, nil
}

func allowListed(all map[string]string, allow []string) map[string]string {
	if len(allow) == 0 {
		return all
	}
	out := make(map[string]string, len(allow))
	for _, k := range allow {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
