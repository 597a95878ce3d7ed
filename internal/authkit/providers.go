package authkit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Provider identifies an upstream identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderNaver  Provider = "naver"
	ProviderKakao  Provider = "kakao"
)

// ProviderIdentity is the canonical identity extracted from a provider's user-info payload.
type ProviderIdentity struct {
	Provider          Provider
	ProviderSubjectID string
	DisplayName       string
	Email             string
}

// Handle returns the provider-qualified user handle, e.g. "google 123".
func (identity ProviderIdentity) Handle() string {
	return string(identity.Provider) + " " + identity.ProviderSubjectID
}

type attributeExtractor func(attributes map[string]interface{}) ProviderIdentity

// Adding a provider means adding an entry here.
var providerExtractors = map[Provider]attributeExtractor{
	ProviderGoogle: extractGoogleAttributes,
	ProviderNaver:  extractNaverAttributes,
	ProviderKakao:  extractKakaoAttributes,
}

// ParseProvider resolves a provider identifier, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := providerExtractors[provider]; !ok {
		return "", fmt.Errorf("provider.parse.%q: %w", name, ErrUnsupportedProvider)
	}
	return provider, nil
}

// SupportedProviders lists every provider with a normalization rule.
func SupportedProviders() []Provider {
	providers := make([]Provider, 0, len(providerExtractors))
	for provider := range providerExtractors {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(left, right int) bool { return providers[left] < providers[right] })
	return providers
}

// NormalizeProviderAttributes maps a provider's raw attribute payload into a ProviderIdentity.
func NormalizeProviderAttributes(providerName string, attributes map[string]interface{}) (ProviderIdentity, error) {
	provider, err := ParseProvider(providerName)
	if err != nil {
		return ProviderIdentity{}, err
	}
	identity := providerExtractors[provider](attributes)
	identity.Provider = provider
	if identity.ProviderSubjectID == "" {
		return ProviderIdentity{}, fmt.Errorf("provider.normalize.%s: %w", provider, ErrIncompleteProviderIdentity)
	}
	return identity, nil
}

func extractGoogleAttributes(attributes map[string]interface{}) ProviderIdentity {
	return ProviderIdentity{
		ProviderSubjectID: stringAttribute(attributes, "sub"),
		DisplayName:       stringAttribute(attributes, "name"),
		Email:             stringAttribute(attributes, "email"),
	}
}

// Naver wraps the profile in a "response" object.
func extractNaverAttributes(attributes map[string]interface{}) ProviderIdentity {
	response := mapAttribute(attributes, "response")
	return ProviderIdentity{
		ProviderSubjectID: stringAttribute(response, "id"),
		DisplayName:       stringAttribute(response, "name"),
		Email:             stringAttribute(response, "email"),
	}
}

// Kakao returns a numeric id; the nickname lives under kakao_account.profile or, for older apps, properties.
func extractKakaoAttributes(attributes map[string]interface{}) ProviderIdentity {
	account := mapAttribute(attributes, "kakao_account")
	displayName := stringAttribute(mapAttribute(account, "profile"), "nickname")
	if displayName == "" {
		displayName = stringAttribute(mapAttribute(attributes, "properties"), "nickname")
	}
	return ProviderIdentity{
		ProviderSubjectID: stringAttribute(attributes, "id"),
		DisplayName:       displayName,
		Email:             stringAttribute(account, "email"),
	}
}

func mapAttribute(attributes map[string]interface{}, key string) map[string]interface{} {
	if attributes == nil {
		return nil
	}
	nested, _ := attributes[key].(map[string]interface{})
	return nested
}

func stringAttribute(attributes map[string]interface{}, key string) string {
	if attributes == nil {
		return ""
	}
	switch value := attributes[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	default:
		return ""
	}
}
