package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionFolderName(t *testing.T) {
	assert.Equal(t, "v000", VersionFolderName(0))
	assert.Equal(t, "v007", VersionFolderName(7))
	assert.Equal(t, "v123", VersionFolderName(123))
	assert.Equal(t, "v1234", VersionFolderName(1234))
}

func TestParseVersionFolder(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"v000", 0, true},
		{"v042", 42, true},
		{"v1000", 1000, true},
		{"v", 0, false},
		{"x001", 0, false},
		{"v01a", 0, false},
		{"backups", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVersionFolder(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssetPaths(t *testing.T) {
	asset := filepath.Join("/proj", "Assets", "Foo")

	assert.Equal(t, filepath.Join(asset, "src"), VersionStorePath(asset))
	assert.Equal(t, filepath.Join(asset, "src", "v003"), VersionPath(asset, 3))
	assert.Equal(t, filepath.Join(asset, "stable"), StablePath(asset))
	assert.Equal(t, filepath.Join(asset, "stable", "backups"), BackupsPath(asset))
}

func TestCheckoutDestinationIsDeterministic(t *testing.T) {
	r := NewResolver("/home/ann/checkout")
	asset := "/proj/Assets/Foo/model"

	first := r.CheckoutDestination(asset, 4)
	second := r.CheckoutDestination(asset+"/", 4)

	assert.Equal(t, "/home/ann/checkout/Foo_model_004", first)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, r.CheckoutDestination(asset, 5))
}

func TestQuarantinePath(t *testing.T) {
	r := NewResolver("/home/ann/checkout")

	assert.Equal(t, "/home/ann/checkout/.unlocked", r.QuarantineRoot())
	assert.Equal(t, "/home/ann/checkout/.unlocked/Foo_model_004",
		r.QuarantinePath("/home/ann/checkout/Foo_model_004"))
}
