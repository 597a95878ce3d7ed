package authkit

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func decodeAttributes(t *testing.T, payload string) map[string]interface{} {
	t.Helper()
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	var attributes map[string]interface{}
	if err := decoder.Decode(&attributes); err != nil {
		t.Fatalf("decode attributes: %v", err)
	}
	return attributes
}

func TestNormalizeProviderAttributes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		provider string
		payload  string
		want     ProviderIdentity
	}{
		{
			name:     "google",
			provider: "google",
			payload:  `{"sub":"123","name":"Ada Lovelace","email":"ada@example.com"}`,
			want:     ProviderIdentity{Provider: ProviderGoogle, ProviderSubjectID: "123", DisplayName: "Ada Lovelace", Email: "ada@example.com"},
		},
		{
			name:     "naver nests the profile under response",
			provider: "naver",
			payload:  `{"resultcode":"00","response":{"id":"nv-42","name":"홍길동","email":"hong@naver.com"}}`,
			want:     ProviderIdentity{Provider: ProviderNaver, ProviderSubjectID: "nv-42", DisplayName: "홍길동", Email: "hong@naver.com"},
		},
		{
			name:     "kakao numeric id and account profile",
			provider: "kakao",
			payload:  `{"id":9007199254740993,"kakao_account":{"email":"k@kakao.com","profile":{"nickname":"카카오"}}}`,
			want:     ProviderIdentity{Provider: ProviderKakao, ProviderSubjectID: "9007199254740993", DisplayName: "카카오", Email: "k@kakao.com"},
		},
		{
			name:     "kakao legacy properties nickname",
			provider: "KAKAO",
			payload:  `{"id":77,"properties":{"nickname":"old"}}`,
			want:     ProviderIdentity{Provider: ProviderKakao, ProviderSubjectID: "77", DisplayName: "old"},
		},
		{
			name:     "google without optional fields",
			provider: "Google",
			payload:  `{"sub":"only-sub"}`,
			want:     ProviderIdentity{Provider: ProviderGoogle, ProviderSubjectID: "only-sub"},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			identity, err := NormalizeProviderAttributes(testCase.provider, decodeAttributes(t, testCase.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(identity, testCase.want) {
				t.Fatalf("expected %#v, got %#v", testCase.want, identity)
			}
		})
	}
}

func TestNormalizeProviderAttributesRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		provider  string
		payload   string
		expectErr error
	}{
		{name: "unknown provider", provider: "github", payload: `{"id":"1"}`, expectErr: ErrUnsupportedProvider},
		{name: "empty provider", provider: "", payload: `{"sub":"1"}`, expectErr: ErrUnsupportedProvider},
		{name: "google without sub", provider: "google", payload: `{"email":"a@b.c"}`, expectErr: ErrIncompleteProviderIdentity},
		{name: "naver without response", provider: "naver", payload: `{"id":"top-level"}`, expectErr: ErrIncompleteProviderIdentity},
		{name: "kakao with object id", provider: "kakao", payload: `{"id":{"value":1}}`, expectErr: ErrIncompleteProviderIdentity},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			_, err := NormalizeProviderAttributes(testCase.provider, decodeAttributes(t, testCase.payload))
			if !errors.Is(err, testCase.expectErr) {
				t.Fatalf("expected %v, got %v", testCase.expectErr, err)
			}
		})
	}
}

func TestSupportedProvidersAndHandle(t *testing.T) {
	t.Parallel()

	want := []Provider{ProviderGoogle, ProviderKakao, ProviderNaver}
	if got := SupportedProviders(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	identity := ProviderIdentity{Provider: ProviderGoogle, ProviderSubjectID: "123"}
	if identity.Handle() != "google 123" {
		t.Fatalf("unexpected handle %q", identity.Handle())
	}
}

func TestDefaultOAuthProviderSettings(t *testing.T) {
	t.Parallel()

	for _, provider := range SupportedProviders() {
		settings, err := DefaultOAuthProviderSettings(provider)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", provider, err)
		}
		if settings.Endpoint.AuthURL == "" || settings.Endpoint.TokenURL == "" || settings.UserInfoURL == "" {
			t.Fatalf("%s: incomplete settings %#v", provider, settings)
		}
	}
	if _, err := DefaultOAuthProviderSettings("github"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
	settings, _ := DefaultOAuthProviderSettings(ProviderNaver)
	if _, err := NewOAuthProviderClient(settings); err == nil {
		t.Fatalf("expected client without credentials to be rejected")
	}
	var registry *ProviderRegistry
	if _, err := registry.Get("google"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected nil registry to report unsupported provider, got %v", err)
	}
}
