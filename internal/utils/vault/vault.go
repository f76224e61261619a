package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Client reads settlement credentials (exchange keys, webhook signing
// secrets) from a Vault KV v2 mount using Kubernetes auth.
type Client struct {
	http         *resty.Client
	kvSecretPath string
	role         string
	tokenPath    string
	token        string
}

type Option func(*Client)

// WithServiceAccountTokenPath overrides where the pod's JWT is read from.
func WithServiceAccountTokenPath(path string) Option {
	return func(c *Client) { c.tokenPath = path }
}

type loginResponse struct {
	Errors []string `json:"errors"`
	Auth   *struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
}

type kvResponse struct {
	Errors []string `json:"errors"`
	Data   *struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

// New logs into Vault and returns a client holding the issued token.
func New(addr, kvSecretPath, role string, opts ...Option) (*Client, error) {
	c := &Client{
		http:         resty.New().SetBaseURL(strings.TrimRight(addr, "/")),
		kvSecretPath: strings.Trim(kvSecretPath, "/"),
		role:         role,
		tokenPath:    defaultServiceAccountTokenPath,
	}
	for _, opt := range opts {
		opt(c)
	}

	token, err := c.login()
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

func (c *Client) login() (string, error) {
	jwt, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return "", errors.Wrap(err, "read service account token")
	}

	var out loginResponse
	resp, err := c.http.R().
		SetBody(map[string]string{
			"jwt":  strings.TrimSpace(string(jwt)),
			"role": c.role,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return "", errors.Wrap(err, "vault login")
	}
	if resp.IsError() {
		return "", fmt.Errorf("vault authentication failed with status %d: %s", resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Auth == nil || out.Auth.ClientToken == "" {
		return "", errors.New("vault returned empty client_token")
	}

	return out.Auth.ClientToken, nil
}

// GetKV returns one string value from the configured secret path.
func (c *Client) GetKV(secretKey string) (string, error) {
	var out kvResponse
	resp, err := c.http.R().
		SetHeader("X-Vault-Token", c.token).
		SetResult(&out).
		SetError(&out).
		Get("/v1/" + c.kvSecretPath)
	if err != nil {
		return "", errors.Wrap(err, "vault kv get")
	}
	if resp.IsError() {
		return "", fmt.Errorf("vault KV get failed with status %d: %s", resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Data == nil {
		return "", errors.New("vault response missing 'data' field")
	}

	raw, ok := out.Data.Data[secretKey]
	if !ok {
		return "", fmt.Errorf("secret key %q not found", secretKey)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret key %q is not a string", secretKey)
	}

	return value, nil
}
