package config

import (
	"net/url"
	"strings"
)

// CheckReport 配置自检结果，错误会阻止启动，警告不会
type CheckReport struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Message  string   `json:"message"`
}

// Check 校验配置并列出不安全但合法的设置，不包含任何凭据
func (c *Config) Check() CheckReport {
	r := CheckReport{
		Errors:   c.problems(),
		Warnings: c.warnings(),
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	r.Valid = len(r.Errors) == 0
	if r.Valid {
		r.Message = "Configuration is valid"
	} else {
		r.Message = "Configuration has errors"
	}
	return r
}

func (c *Config) warnings() []string {
	warns := []string{}
	hasCreds := c.Auth.Cookie != "" || c.Auth.Token != "" || c.Auth.PasscodeToken != "" || c.Auth.User != ""

	if u, err := url.Parse(c.ResolvedBaseURL()); err == nil && strings.EqualFold(u.Scheme, "http") && hasCreds {
		warns = append(warns, "engine credentials are sent over plain http")
	}
	if !c.NiFi.VerifySSL {
		warns = append(warns, "nifi.verify_ssl is false; engine certificates are not verified")
	}
	if !hasCreds {
		warns = append(warns, "no engine credentials configured; requests are anonymous")
	}
	if !c.NiFi.ReadOnly {
		warns = append(warns, "nifi.read_only is false; mutating tools are exposed")
	}
	if c.Server.Transport != TransportStdio && !c.HTTPAuth.Enabled() {
		warns = append(warns, "http_auth is off; any client that reaches server.addr can call tools")
	}
	return warns
}
