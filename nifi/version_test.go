package nifi

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "2.0.0", want: Version{2, 0, 0}},
		{in: "1.23.2", want: Version{1, 23, 2}},
		{in: "2.0.0-M4", want: Version{2, 0, 0}},
		{in: "1.28.1-SNAPSHOT", want: Version{1, 28, 1}},
		{in: "1.9", want: Version{1, 9, 0}},
		{in: "2", want: Version{2, 0, 0}},
		{in: "v2.1.0", want: Version{2, 1, 0}},
		{in: "1.12.1.2.1.5.0-3", want: Version{1, 12, 1}},
		{in: "2.x.1", want: Version{2, 0, 0}},
		{in: "", wantErr: true},
		{in: "garbage", wantErr: true},
		{in: ".1.2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersion_Epoch(t *testing.T) {
	assert.True(t, Version{2, 0, 0}.IsEpoch2())
	assert.True(t, Version{3, 1, 0}.IsEpoch2())
	assert.False(t, Version{1, 23, 2}.IsEpoch2())
	assert.Equal(t, "1.23.2", Version{1, 23, 2}.String())
}

func TestProperty_ParseVersionKeepsFirstThreeComponents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("leading integers of the first three components survive any suffix", prop.ForAll(
		func(major, minor, patch int, suffix string) bool {
			raw := fmt.Sprintf("%d.%d.%d%s", major, minor, patch, suffix)
			v, err := ParseVersion(raw)
			if err != nil {
				t.Logf("parse %q: %v", raw, err)
				return false
			}
			return v == Version{Major: major, Minor: minor, Patch: patch}
		},
		gen.IntRange(0, 99),
		gen.IntRange(0, 999),
		gen.IntRange(0, 999),
		gen.OneConstOf("", "-M4", "-SNAPSHOT", ".4", ".2.1.5.0-3", "-RC1"),
	))

	properties.Property("epoch2 iff major >= 2", prop.ForAll(
		func(major int) bool {
			v, err := ParseVersion(fmt.Sprintf("%d.0.0", major))
			return err == nil && v.IsEpoch2() == (major >= 2)
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestDetectVersion_CachesResult(t *testing.T) {
	c, fake := newTestClient(t)
	fake.SetVersion("2.0.0-M4")
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Version{2, 0, 0}, c.DetectVersion(ctx))
		assert.True(t, c.IsEpoch2(ctx))
	}
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))
}

func TestDetectVersion_Epoch1(t *testing.T) {
	c, fake := newTestClient(t)
	fake.SetVersion("1.23.2")

	assert.Equal(t, Version{1, 23, 2}, c.DetectVersion(testContext(t)))
	assert.False(t, c.IsEpoch2(testContext(t)))
}

func TestDetectVersion_UnreachableFallsBackOnce(t *testing.T) {
	c, fake := newTestClient(t)
	fake.FailAbout()
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		assert.Equal(t, FallbackVersion, c.DetectVersion(ctx))
		assert.False(t, c.IsEpoch2(ctx))
	}
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))

	// 引擎恢复后仍使用缓存的回退值
	fake.SetVersion("2.0.0")
	assert.Equal(t, FallbackVersion, c.DetectVersion(ctx))
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))
}

func TestDetectVersion_MalformedFallsBack(t *testing.T) {
	c, fake := newTestClient(t)
	fake.SetVersion("unknown")

	assert.Equal(t, Version{1, 0, 0}, c.DetectVersion(testContext(t)))
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))
}

func TestDetectVersion_ConcurrentFirstAccess(t *testing.T) {
	c, fake := newTestClient(t)
	fake.SetVersion("2.1.0")
	ctx := testContext(t)

	var wg sync.WaitGroup
	results := make([]Version, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.DetectVersion(ctx)
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, Version{2, 1, 0}, v)
	}
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))
}
