package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"deep-research/handler"
	"deep-research/internal/config"
	"deep-research/internal/integrations/openrouter"
	"deep-research/internal/integrations/paramstore"
	"deep-research/internal/usecase"
)

// upstreamTransport is shared so keep-alive connections to OpenRouter are
// reused across requests.
var upstreamTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
}

// Components holds the wired dependencies shared by the server and Lambda
// entry points.
type Components struct {
	Keys     usecase.KeySource
	Upstream *openrouter.Client
	Research *usecase.ResearchService
	Handler  *handler.Handler
}

// getterLoader builds the Parameter Store client on demand, so AWS config is
// only loaded when the SSM fallback is enabled.
type getterLoader func(ctx context.Context) (paramstore.Getter, error)

func NewComponents(ctx context.Context, cfg config.Config) (*Components, error) {
	return newComponents(ctx, cfg, loadParamStore)
}

func newComponents(ctx context.Context, cfg config.Config, load getterLoader) (*Components, error) {
	keys, err := newKeySource(ctx, cfg, load)
	if err != nil {
		return nil, err
	}

	upstream := openrouter.NewClient(
		openrouter.WithBaseURL(cfg.BaseURL),
		openrouter.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout, Transport: upstreamTransport}),
		openrouter.WithAttribution(cfg.Referer, cfg.Title),
	)

	research, err := usecase.NewResearchService(keys, upstream, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("di: research service: %w", err)
	}

	h, err := handler.NewHandler(research, handler.WithDeferredHeaders(cfg.DeferStreamHeaders))
	if err != nil {
		return nil, fmt.Errorf("di: handler: %w", err)
	}

	return &Components{Keys: keys, Upstream: upstream, Research: research, Handler: h}, nil
}

// newKeySource prefers OPENROUTER_API_KEY. Without it, the key comes from
// Parameter Store when PARAM_PREFIX is set, and is otherwise reported as not
// configured on each request.
func newKeySource(ctx context.Context, cfg config.Config, load getterLoader) (usecase.KeySource, error) {
	if cfg.APIKey != "" {
		return usecase.StaticKey(cfg.APIKey), nil
	}
	name := cfg.APIKeyParameter()
	if name == "" {
		return usecase.StaticKey(""), nil
	}

	getter, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: parameter store: %w", err)
	}
	resolver, err := paramstore.NewKeyResolver(getter, name)
	if err != nil {
		return nil, fmt.Errorf("di: key resolver: %w", err)
	}
	return resolver, nil
}

func loadParamStore(ctx context.Context) (paramstore.Getter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return paramstore.New(awsssm.NewFromConfig(awsCfg))
}
