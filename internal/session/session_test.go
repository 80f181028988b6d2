package session

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nifimcp/config"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "nifi-admin",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// echoServer 记录最后一次请求头
func echoServer(t *testing.T) (*httptest.Server, *atomic.Pointer[http.Header]) {
	t.Helper()
	var last atomic.Pointer[http.Header]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Clone()
		last.Store(&h)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func doGet(t *testing.T, s *Session, url string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := s.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestNew_CookieWins(t *testing.T) {
	srv, last := echoServer(t)
	s, err := New(context.Background(), config.AuthConfig{
		Cookie:   "session=abc",
		Token:    "ignored",
		User:     "u",
		Password: "p",
	}, srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeCookie, s.Mode())

	doGet(t, s, srv.URL)
	h := *last.Load()
	assert.Equal(t, "session=abc", h.Get("Cookie"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestNew_KnoxTokenSentAsCookie(t *testing.T) {
	srv, last := echoServer(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)

	s, err := New(context.Background(), config.AuthConfig{Token: token}, srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeKnoxToken, s.Mode())

	got, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	doGet(t, s, srv.URL)
	assert.Equal(t, "hadoop-jwt="+token, (*last.Load()).Get("Cookie"))
}

func TestNew_ExpiredTokenRejected(t *testing.T) {
	token := signedToken(t, time.Now().Add(-time.Minute))
	_, err := New(context.Background(), config.AuthConfig{Token: token}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNew_OpaqueTokenAccepted(t *testing.T) {
	s, err := New(context.Background(), config.AuthConfig{Token: "not-a-jwt"}, nil, nil)
	require.NoError(t, err)
	_, ok := s.ExpiresAt()
	assert.False(t, ok)
}

func TestNew_PasscodeExchange(t *testing.T) {
	jwtToken := signedToken(t, time.Now().Add(time.Hour))
	knox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway/knoxtoken/api/v1/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "passcode" || pass != "pc-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + jwtToken + `","token_type":"Bearer"}`))
	}))
	defer knox.Close()
	nifiSrv, last := echoServer(t)

	s, err := New(context.Background(), config.AuthConfig{
		KnoxGatewayURL: knox.URL + "/gateway/",
		PasscodeToken:  "pc-123",
	}, knox.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModePasscodeJWT, s.Mode())

	doGet(t, s, nifiSrv.URL)
	assert.Equal(t, "Bearer "+jwtToken, (*last.Load()).Get("Authorization"))
}

func TestNew_PasscodeExchangeFailureIsError(t *testing.T) {
	knox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer knox.Close()

	_, err := New(context.Background(), config.AuthConfig{
		TokenEndpoint: knox.URL,
		PasscodeToken: "pc-123",
	}, knox.Client(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNew_PasscodeHeaderWithoutEndpoint(t *testing.T) {
	srv, last := echoServer(t)
	s, err := New(context.Background(), config.AuthConfig{PasscodeToken: "pc-123"}, srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModePasscode, s.Mode())

	doGet(t, s, srv.URL)
	assert.Equal(t, "pc-123", (*last.Load()).Get("X-Knox-Passcode"))
}

func TestNew_BasicCredentialsExchange(t *testing.T) {
	jwtToken := signedToken(t, time.Now().Add(time.Hour))
	tests := []struct {
		name string
		body string
	}{
		{name: "raw", body: jwtToken},
		{name: "json token field", body: `{"token":"` + jwtToken + `"}`},
		{name: "json accessToken field", body: `{"accessToken":"` + jwtToken + `"}`},
		{name: "base64", body: base64.StdEncoding.EncodeToString([]byte(jwtToken))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			knox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, pass, _ := r.BasicAuth()
				assert.Equal(t, "admin", user)
				assert.Equal(t, "secret", pass)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer knox.Close()

			s, err := New(context.Background(), config.AuthConfig{
				TokenEndpoint: knox.URL,
				User:          "admin",
				Password:      "secret",
			}, knox.Client(), nil)
			require.NoError(t, err)
			assert.Equal(t, ModeExchangedJWT, s.Mode())
			assert.Equal(t, "Bearer "+jwtToken, s.header.Get("Authorization"))
		})
	}
}

func TestNew_BasicFallbackWhenExchangeFails(t *testing.T) {
	knox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer knox.Close()
	nifiSrv, last := echoServer(t)

	s, err := New(context.Background(), config.AuthConfig{
		TokenEndpoint: knox.URL,
		User:          "admin",
		Password:      "secret",
	}, knox.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeBasic, s.Mode())

	doGet(t, s, nifiSrv.URL)
	req := &http.Request{Header: *last.Load()}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestNew_BasicWithoutEndpoint(t *testing.T) {
	s, err := New(context.Background(), config.AuthConfig{User: "admin", Password: "secret"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeBasic, s.Mode())
}

func TestNew_NoCredentials(t *testing.T) {
	srv, last := echoServer(t)
	s, err := New(context.Background(), config.AuthConfig{User: "only-user"}, srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, s.Mode())

	doGet(t, s, srv.URL)
	h := *last.Load()
	assert.Empty(t, h.Get("Authorization"))
	assert.Empty(t, h.Get("Cookie"))
}

func TestDo_KeepsExplicitRequestHeaders(t *testing.T) {
	srv, last := echoServer(t)
	s, err := New(context.Background(), config.AuthConfig{Cookie: "a=b"}, srv.Client(), nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "override=1")
	resp, err := s.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "override=1", (*last.Load()).Get("Cookie"))
}

func TestTokenEndpoint(t *testing.T) {
	assert.Empty(t, TokenEndpoint(config.AuthConfig{}))
	assert.Equal(t, "https://knox/gw/knoxtoken/api/v1/token",
		TokenEndpoint(config.AuthConfig{KnoxGatewayURL: "https://knox/gw/"}))
	assert.Equal(t, "https://explicit/token",
		TokenEndpoint(config.AuthConfig{KnoxGatewayURL: "https://knox/gw", TokenEndpoint: "https://explicit/token"}))
}
