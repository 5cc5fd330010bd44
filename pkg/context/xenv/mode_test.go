package xenv_test

import (
	"sync"
	"testing"

	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv 设置 APP_ENV 并在测试结束后重置全局状态。
// t.Setenv 会在结束时恢复原值；传入空串表示未设置。
func withEnv(t *testing.T, value string) {
	t.Helper()
	t.Setenv(xenv.EnvMode, value)
	t.Cleanup(xenv.Reset)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		value string
		want  xenv.Mode
	}{
		{"production", xenv.Production},
		{"PRODUCTION", xenv.Production},
		{"  Production ", xenv.Production},
		{"development", xenv.Development},
		{"staging", xenv.Development},
		{"", xenv.Development},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			withEnv(t, tt.value)
			assert.Equal(t, tt.want, xenv.Detect())
		})
	}
}

func TestInit(t *testing.T) {
	withEnv(t, "production")

	assert.False(t, xenv.IsInitialized())
	_, err := xenv.RequireMode()
	require.ErrorIs(t, err, xenv.ErrNotInitialized)
	assert.Equal(t, xenv.Development, xenv.Current(), "uninitialized defaults to development")

	require.NoError(t, xenv.Init())
	assert.True(t, xenv.IsInitialized())
	assert.True(t, xenv.IsProduction())

	m, err := xenv.RequireMode()
	require.NoError(t, err)
	assert.Equal(t, xenv.Production, m)

	require.ErrorIs(t, xenv.Init(), xenv.ErrAlreadyInitialized)
	require.ErrorIs(t, xenv.InitWith(xenv.Development), xenv.ErrAlreadyInitialized)
	assert.True(t, xenv.IsProduction(), "second init must not change mode")
}

func TestInitWith_Invalid(t *testing.T) {
	withEnv(t, "")

	err := xenv.InitWith(xenv.Mode("qa"))
	require.ErrorIs(t, err, xenv.ErrInvalidMode)
	assert.False(t, xenv.IsInitialized())
}

func TestMustInit(t *testing.T) {
	withEnv(t, "")

	assert.NotPanics(t, xenv.MustInit)
	assert.Equal(t, xenv.Development, xenv.Current())
	assert.Panics(t, xenv.MustInit)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    xenv.Mode
		wantErr bool
	}{
		{in: "production", want: xenv.Production},
		{in: "Development", want: xenv.Development},
		{in: " PRODUCTION ", want: xenv.Production},
		{in: "", wantErr: true},
		{in: "prod", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := xenv.Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, xenv.ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConcurrentRead(t *testing.T) {
	withEnv(t, "")
	require.NoError(t, xenv.InitWith(xenv.Production))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.True(t, xenv.IsProduction())
			}
		}()
	}
	wg.Wait()
}
