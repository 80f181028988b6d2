package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
)

const (
	knoxTokenPath   = "/knoxtoken/api/v1/token"
	knoxCookieName  = "hadoop-jwt"
	passcodeHeader  = "X-Knox-Passcode"
	requestedBy     = "nifimcp"
	tokenFetchLimit = 1 << 20
)

// ErrTokenExpired 配置的 JWT 已过期
var ErrTokenExpired = errors.New("knox token expired")

// Mode 会话认证方式
type Mode string

const (
	ModeNone         Mode = "none"
	ModeCookie       Mode = "cookie"
	ModeKnoxToken    Mode = "knox_token"
	ModePasscode     Mode = "passcode"
	ModePasscodeJWT  Mode = "passcode_jwt"
	ModeExchangedJWT Mode = "basic_exchanged_jwt"
	ModeBasic        Mode = "basic"
)

// Session 为每个请求注入认证信息的 HTTP 会话
//
// 认证信息在 New 时一次性确定，之后只读，可并发使用。
type Session struct {
	client    *http.Client
	header    http.Header
	user      string
	password  string
	mode      Mode
	expiresAt time.Time
}

// Do 附加认证头后发送请求
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	for k, vs := range s.header {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if s.mode == ModeBasic {
		req.SetBasicAuth(s.user, s.password)
	}
	return s.client.Do(req)
}

// Mode 返回生效的认证方式
func (s *Session) Mode() Mode { return s.mode }

// ExpiresAt 返回 JWT 过期时间；无法得知时 ok 为 false
func (s *Session) ExpiresAt() (t time.Time, ok bool) {
	return s.expiresAt, !s.expiresAt.IsZero()
}

// New 按优先级构造会话：
// 显式 Cookie、Knox JWT（hadoop-jwt Cookie）、passcode、用户名密码换取 JWT、直接 Basic。
// 都未配置时返回不带认证的会话。
func New(ctx context.Context, cfg config.AuthConfig, client *http.Client, logger *zap.Logger) (*Session, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "session"))

	s := &Session{client: client, header: make(http.Header), mode: ModeNone}
	endpoint := TokenEndpoint(cfg)

	switch {
	case cfg.Cookie != "":
		s.header.Set("Cookie", cfg.Cookie)
		s.mode = ModeCookie

	case cfg.Token != "":
		if err := s.checkExpiry(cfg.Token); err != nil {
			return nil, err
		}
		s.header.Set("Cookie", knoxCookieName+"="+cfg.Token)
		s.mode = ModeKnoxToken

	case cfg.PasscodeToken != "":
		if endpoint == "" {
			s.header.Set(passcodeHeader, cfg.PasscodeToken)
			s.mode = ModePasscode
			break
		}
		token, err := exchangePasscode(ctx, client, endpoint, cfg.PasscodeToken)
		if err != nil {
			return nil, fmt.Errorf("exchange knox passcode: %w", err)
		}
		if err := s.checkExpiry(token); err != nil {
			return nil, err
		}
		s.header.Set("Authorization", "Bearer "+token)
		s.mode = ModePasscodeJWT

	case cfg.User != "" && cfg.Password != "":
		if endpoint != "" {
			token, err := fetchToken(ctx, client, endpoint, cfg.User, cfg.Password)
			if err == nil {
				err = s.checkExpiry(token)
			}
			if err == nil {
				s.header.Set("Authorization", "Bearer "+token)
				s.mode = ModeExchangedJWT
				break
			}
			logger.Warn("knox token exchange failed, falling back to basic auth",
				zap.String("endpoint", endpoint), zap.Error(err))
			s.expiresAt = time.Time{}
		}
		s.user, s.password = cfg.User, cfg.Password
		s.mode = ModeBasic
	}

	fields := []zap.Field{zap.String("mode", string(s.mode))}
	if exp, ok := s.ExpiresAt(); ok {
		fields = append(fields, zap.Time("expires_at", exp))
	}
	logger.Info("engine session ready", fields...)
	return s, nil
}

// TokenEndpoint 返回 knoxtoken 端点，未配置网关时为空
func TokenEndpoint(cfg config.AuthConfig) string {
	if cfg.TokenEndpoint != "" {
		return cfg.TokenEndpoint
	}
	if cfg.KnoxGatewayURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.KnoxGatewayURL, "/") + knoxTokenPath
}

// checkExpiry 读取 JWT 的 exp，不校验签名；非 JWT 的令牌原样放行
func (s *Session) checkExpiry(token string) error {
	exp, ok := TokenExpiry(token)
	if !ok {
		return nil
	}
	if !exp.After(time.Now()) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	s.expiresAt = exp
	return nil
}

// TokenExpiry 解析 JWT 的过期时间
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func exchangePasscode(ctx context.Context, client *http.Client, endpoint, passcode string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth("passcode", passcode)
	req.Header.Set("X-Requested-By", requestedBy)
	return readToken(client, req, false)
}

func fetchToken(ctx context.Context, client *http.Client, endpoint, user, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(user, password)
	req.Header.Set("X-Requested-By", requestedBy)
	return readToken(client, req, true)
}

// readToken 解析 knoxtoken 响应：JSON 中的 access_token/token/accessToken，或原始文本
func readToken(client *http.Client, req *http.Request, decodeBase64 bool) (string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, tokenFetchLimit))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		Token        string `json:"token"`
		AccessToken2 string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, t := range []string{payload.AccessToken, payload.Token, payload.AccessToken2} {
			if t != "" {
				return t, nil
			}
		}
		return "", errors.New("token endpoint response has no token field")
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", errors.New("token endpoint returned an empty body")
	}
	if decodeBase64 {
		if raw, err := base64.StdEncoding.DecodeString(text); err == nil && strings.Count(string(raw), ".") == 2 {
			return string(raw), nil
		}
	}
	return text, nil
}
