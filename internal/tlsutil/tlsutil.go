// Package tlsutil 为访问 NiFi 的 HTTP 客户端构造 TLS 配置。
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// Options 客户端 TLS 选项
type Options struct {
	// 是否校验服务端证书
	VerifySSL bool
	// PEM 格式的 CA 证书文件，为空时使用系统根证书
	CABundle string
	// 双向 TLS 的客户端证书与私钥，必须成对出现
	ClientCert string
	ClientKey  string
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientTLSConfig 按选项构造客户端 TLS 配置
func ClientTLSConfig(opts Options) (*tls.Config, error) {
	cfg := DefaultTLSConfig()
	if !opts.VerifySSL {
		cfg.InsecureSkipVerify = true //nolint:gosec // 由配置显式关闭
	}

	if opts.CABundle != "" {
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s contains no PEM certificates", opts.CABundle)
		}
		cfg.RootCAs = pool
	}

	switch {
	case opts.ClientCert != "" && opts.ClientKey != "":
		cert, err := tls.LoadX509KeyPair(opts.ClientCert, opts.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case opts.ClientCert != "" || opts.ClientKey != "":
		return nil, errors.New("client certificate and key must be set together")
	}
	return cfg, nil
}

// SecureTransport returns an http.Transport with the given TLS config.
// A nil config falls back to DefaultTLSConfig.
func SecureTransport(tlsConfig *tls.Config) *http.Transport {
	if tlsConfig == nil {
		tlsConfig = DefaultTLSConfig()
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient 构造带超时和 TLS 配置的 http.Client
func NewHTTPClient(timeout time.Duration, opts Options) (*http.Client, error) {
	cfg, err := ClientTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(cfg),
	}, nil
}
