package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

// KeyResolver fetches the OpenRouter API key from SSM on first use and keeps
// it for the lifetime of the process. Failed lookups are not kept; the next
// call tries again.
type KeyResolver struct {
	getter Getter
	name   string

	mu       sync.Mutex
	apiKey   string
	resolved bool
}

func NewKeyResolver(getter Getter, name string) (*KeyResolver, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: key parameter name must not be empty")
	}
	return &KeyResolver{getter: getter, name: name}, nil
}

// APIKey returns the cached key, fetching it under ctx if no lookup has
// succeeded yet. Concurrent callers wait for the fetch in progress.
func (r *KeyResolver) APIKey(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.apiKey, nil
	}

	key, err := fetchToken(ctx, r.getter, r.name)
	if err != nil {
		return "", err
	}
	r.apiKey, r.resolved = key, true
	return key, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch api key: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal api key value as JSON: %w", err)
	}
	// An empty token is not an error here; the caller reports it as missing
	// configuration.
	return strings.TrimSpace(tp.Token), nil
}
