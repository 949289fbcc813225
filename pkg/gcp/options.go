package gcp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

// Only key-based credentials are accepted. External and impersonated
// configurations carry URLs the SDK does not validate.
var credentialKinds = map[string]option.CredentialsType{
	"service_account": option.ServiceAccount,
	"authorized_user": option.AuthorizedUser,
}

// ClientOptions returns the credential options shared by the Pub/Sub and
// BigQuery clients. Inline JSON wins over a credentials file; with neither,
// the SDK falls back to application default credentials.
func ClientOptions(cfg config.GCPConfig) ([]option.ClientOption, error) {
	if inline := strings.TrimSpace(cfg.CredentialsJSON); inline != "" {
		kind, err := credentialKind([]byte(inline))
		if err != nil {
			return nil, fmt.Errorf("inline gcp credentials: %w", err)
		}
		return []option.ClientOption{option.WithAuthCredentialsJSON(kind, []byte(inline))}, nil
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading gcp credentials: %w", err)
		}
		kind, err := credentialKind(raw)
		if err != nil {
			return nil, fmt.Errorf("gcp credentials %s: %w", path, err)
		}
		return []option.ClientOption{option.WithAuthCredentialsFile(kind, path)}, nil
	}
	return nil, nil
}

func credentialKind(raw []byte) (option.CredentialsType, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("not a credentials document: %w", err)
	}
	kind, ok := credentialKinds[head.Type]
	if !ok {
		return "", fmt.Errorf("unsupported credential type %q", head.Type)
	}
	return kind, nil
}
