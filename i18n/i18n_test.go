package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestT(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Se connecter", b.T("fr", "Login"))
	assert.Equal(t, "Login", b.T("en", "Login"))
	assert.Equal(t, "Login", b.T("de", "Login"), "unknown language falls back to English")
	assert.Equal(t, "NoSuchKey", b.T("fr", "NoSuchKey"))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	for key := range b.translations[DefaultLang] {
		for lang, catalog := range b.translations {
			_, ok := catalog[key]
			assert.True(t, ok, "locale %s missing key %s", lang, key)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	tests := []struct {
		accept string
		want   string
	}{
		{accept: "", want: "en"},
		{accept: "fr-CH, fr;q=0.9, en;q=0.8, de;q=0.7, *;q=0.5", want: "fr"},
		{accept: "en-US,en;q=0.9", want: "en"},
		{accept: "de-DE", want: "en"},
		{accept: "not a header;;;", want: "en"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.accept != "" {
			r.Header.Set("Accept-Language", tt.accept)
		}
		assert.Equal(t, tt.want, b.DetectLanguage(r), "Accept-Language %q", tt.accept)
	}
}
