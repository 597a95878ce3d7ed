package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const maxUserInfoBytes = 1 << 20

var errUserInfoStatus = errors.New("oauth.userinfo.unexpected_status")

// ProviderClient drives one provider's authorization-code flow and returns raw user-info attributes.
type ProviderClient interface {
	Provider() Provider
	AuthCodeURL(state string) string
	FetchAttributes(ctx context.Context, code string) (map[string]interface{}, error)
}

// OAuthProviderSettings configures an authorization-code client.
type OAuthProviderSettings struct {
	Provider     Provider
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	Scopes       []string
}

// DefaultOAuthProviderSettings returns the public endpoints and scopes for a supported provider.
func DefaultOAuthProviderSettings(provider Provider) (OAuthProviderSettings, error) {
	switch provider {
	case ProviderGoogle:
		return OAuthProviderSettings{
			Provider:    provider,
			Endpoint:    google.Endpoint,
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:      []string{"openid", "profile", "email"},
		}, nil
	case ProviderNaver:
		return OAuthProviderSettings{
			Provider: provider,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://nid.naver.com/oauth2.0/authorize",
				TokenURL:  "https://nid.naver.com/oauth2.0/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			UserInfoURL: "https://openapi.naver.com/v1/nid/me",
			Scopes:      []string{"name", "email"},
		}, nil
	case ProviderKakao:
		return OAuthProviderSettings{
			Provider: provider,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://kauth.kakao.com/oauth/authorize",
				TokenURL:  "https://kauth.kakao.com/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			UserInfoURL: "https://kapi.kakao.com/v2/user/me",
			Scopes:      []string{"profile_nickname", "account_email"},
		}, nil
	default:
		return OAuthProviderSettings{}, fmt.Errorf("oauth.settings.%s: %w", provider, ErrUnsupportedProvider)
	}
}

type oauthProviderClient struct {
	provider    Provider
	config      *oauth2.Config
	userInfoURL string
}

// NewOAuthProviderClient builds a ProviderClient from settings.
func NewOAuthProviderClient(settings OAuthProviderSettings) (ProviderClient, error) {
	if _, err := ParseProvider(string(settings.Provider)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.ClientID) == "" || strings.TrimSpace(settings.RedirectURL) == "" || strings.TrimSpace(settings.UserInfoURL) == "" {
		return nil, fmt.Errorf("oauth.client.%s: client id, redirect url and user-info url are required", settings.Provider)
	}
	return &oauthProviderClient{
		provider: settings.Provider,
		config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Endpoint:     settings.Endpoint,
			Scopes:       settings.Scopes,
		},
		userInfoURL: settings.UserInfoURL,
	}, nil
}

func (client *oauthProviderClient) Provider() Provider {
	return client.provider
}

func (client *oauthProviderClient) AuthCodeURL(state string) string {
	return client.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// FetchAttributes exchanges the code and returns the decoded user-info document.
// Numbers are kept as json.Number so large provider ids survive intact.
func (client *oauthProviderClient) FetchAttributes(ctx context.Context, code string) (map[string]interface{}, error) {
	token, exchangeErr := client.config.Exchange(ctx, code)
	if exchangeErr != nil {
		return nil, fmt.Errorf("oauth.exchange.%s: %w", client.provider, exchangeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, client.userInfoURL, nil)
	if requestErr != nil {
		return nil, fmt.Errorf("oauth.userinfo.%s: %w", client.provider, requestErr)
	}
	response, responseErr := client.config.Client(ctx, token).Do(request)
	if responseErr != nil {
		return nil, fmt.Errorf("oauth.userinfo.%s: %w", client.provider, responseErr)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth.userinfo.%s: %w: %d", client.provider, errUserInfoStatus, response.StatusCode)
	}
	decoder := json.NewDecoder(io.LimitReader(response.Body, maxUserInfoBytes))
	decoder.UseNumber()
	var attributes map[string]interface{}
	if decodeErr := decoder.Decode(&attributes); decodeErr != nil {
		return nil, fmt.Errorf("oauth.userinfo.%s.decode: %w", client.provider, decodeErr)
	}
	return attributes, nil
}

// ProviderRegistry resolves configured provider clients by identifier.
type ProviderRegistry struct {
	clients map[Provider]ProviderClient
}

// NewProviderRegistry registers the given clients by provider.
func NewProviderRegistry(clients ...ProviderClient) *ProviderRegistry {
	registered := make(map[Provider]ProviderClient, len(clients))
	for _, client := range clients {
		registered[client.Provider()] = client
	}
	return &ProviderRegistry{clients: registered}
}

// Get returns the client for name; unknown or unconfigured providers yield ErrUnsupportedProvider.
func (registry *ProviderRegistry) Get(name string) (ProviderClient, error) {
	provider, err := ParseProvider(name)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("oauth.registry.%s: %w", provider, ErrUnsupportedProvider)
	}
	client, ok := registry.clients[provider]
	if !ok {
		return nil, fmt.Errorf("oauth.registry.%s: %w", provider, ErrUnsupportedProvider)
	}
	return client, nil
}

// GoogleTokenValidator verifies Google ID tokens.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator returns a validator backed by Google's published signing keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth.google_validator: %w", err)
	}
	return validator, nil
}
