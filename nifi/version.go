package nifi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Version 引擎版本号（只保留前三段）
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// FallbackVersion 探测失败时使用的版本
var FallbackVersion = Version{Major: 1}

// IsEpoch2 是否为 2.x 及以上的 API 代际
func (v Version) IsEpoch2() bool {
	return v.Major >= 2
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion 解析点分版本号
//
// 取前三段各自的前导整数，缺失段补 0："2.0.0-M4" -> 2.0.0，"1.23" -> 1.23.0。
// 第一段没有前导数字时返回错误。
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	parts := strings.SplitN(s, ".", 4)
	var nums [3]int
	for i := 0; i < 3 && i < len(parts); i++ {
		digits := leadingDigits(parts[i])
		if digits == "" {
			if i == 0 {
				return Version{}, fmt.Errorf("version %q has no numeric major component", s)
			}
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: %w", s, err)
		}
		nums[i] = n
		if len(digits) != len(parts[i]) {
			// "0-M4" 之后的段不再属于版本号
			break
		}
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// DetectVersion 返回引擎版本，首次调用时读取 flow/about
//
// 任何失败都回退为 1.0.0 并缓存，不会再次探测。并发的首次调用只触发一次请求。
func (c *Client) DetectVersion(ctx context.Context) Version {
	if v := c.version.Load(); v != nil {
		return *v
	}

	res, _, _ := c.detect.Do("version", func() (any, error) {
		if v := c.version.Load(); v != nil {
			return *v, nil
		}
		v := c.probeVersion(context.WithoutCancel(ctx))
		c.version.Store(&v)
		return v, nil
	})
	return res.(Version)
}

// IsEpoch2 当前引擎是否为 2.x
func (c *Client) IsEpoch2(ctx context.Context) bool {
	return c.DetectVersion(ctx).IsEpoch2()
}

func (c *Client) probeVersion(ctx context.Context) Version {
	about, err := c.GetAbout(ctx)
	if err != nil {
		c.logger.Warn("version detection failed, assuming 1.x",
			zap.String("fallback", FallbackVersion.String()),
			zap.Error(err),
		)
		return FallbackVersion
	}

	raw := stringOf(about.Map("about")["version"])
	v, err := ParseVersion(raw)
	if err != nil {
		c.logger.Warn("unparseable engine version, assuming 1.x",
			zap.String("raw", raw),
			zap.Error(err),
		)
		return FallbackVersion
	}

	c.logger.Info("engine version detected",
		zap.String("version", v.String()),
		zap.Bool("epoch2", v.IsEpoch2()),
	)
	return v
}
