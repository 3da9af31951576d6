package match

import (
	"testing"

	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		// Raw bytes
		{name: "raw bytes", input: "1024", want: 1024},
		{name: "zero bytes", input: "0", want: 0},
		{name: "large bytes", input: "104857600", want: 104857600},

		// Base-10 (SI) units
		{name: "KB lowercase", input: "1kb", want: 1000},
		{name: "KB uppercase", input: "1KB", want: 1000},
		{name: "MB", input: "100MB", want: 100 * 1000 * 1000},
		{name: "GB", input: "1GB", want: 1000 * 1000 * 1000},
		{name: "TB", input: "2TB", want: 2 * 1000 * 1000 * 1000 * 1000},

		// Base-2 (IEC) units
		{name: "KiB", input: "1KiB", want: 1024},
		{name: "MiB", input: "100MiB", want: 100 * 1024 * 1024},
		{name: "GiB", input: "1GiB", want: 1024 * 1024 * 1024},
		{name: "TiB", input: "1TiB", want: 1024 * 1024 * 1024 * 1024},

		// Shorthand units
		{name: "K shorthand", input: "1K", want: 1000},
		{name: "M shorthand", input: "1M", want: 1000 * 1000},
		{name: "G shorthand", input: "1G", want: 1000 * 1000 * 1000},

		// Decimal values
		{name: "decimal KB", input: "1.5KB", want: 1500},
		{name: "decimal MiB", input: "2.5MiB", want: int64(2.5 * 1024 * 1024)},

		// With spaces
		{name: "space before unit", input: "100 MB", want: 100 * 1000 * 1000},
		{name: "leading space", input: " 100MB", want: 100 * 1000 * 1000},
		{name: "trailing space", input: "100MB ", want: 100 * 1000 * 1000},

		// B suffix
		{name: "explicit bytes", input: "1024B", want: 1024},

		// Error cases
		{name: "empty string", input: "", wantErr: true},
		{name: "negative", input: "-100", wantErr: true},
		{name: "negative with unit", input: "-1KB", wantErr: true},
		{name: "overflow raw bytes", input: "9223372036854775808", wantErr: true},
		{name: "overflow with unit", input: "1000000000000000000000TB", wantErr: true},
		{name: "invalid unit", input: "100XB", wantErr: true},
		{name: "no number", input: "KB", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0B"},
		{100, "100B"},
		{1023, "1023B"},
		{1024, "1.0KiB"},
		{1536, "1.5KiB"},
		{1024 * 1024, "1.0MiB"},
		{1024 * 1024 * 1024, "1.0GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0TiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatSize(tt.bytes)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizeFilter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *SizeFilterConfig
		obj     provider.ObjectSummary
		want    bool
		wantErr bool
	}{
		{
			name: "min only - pass",
			cfg:  &SizeFilterConfig{Min: "1KB"},
			obj:  provider.ObjectSummary{Size: 2000},
			want: true,
		},
		{
			name: "min only - fail",
			cfg:  &SizeFilterConfig{Min: "1KB"},
			obj:  provider.ObjectSummary{Size: 500},
			want: false,
		},
		{
			name: "max only - pass",
			cfg:  &SizeFilterConfig{Max: "100KB"},
			obj:  provider.ObjectSummary{Size: 50000},
			want: true,
		},
		{
			name: "max only - fail",
			cfg:  &SizeFilterConfig{Max: "100KB"},
			obj:  provider.ObjectSummary{Size: 200000},
			want: false,
		},
		{
			name: "range - pass",
			cfg:  &SizeFilterConfig{Min: "1KB", Max: "100KB"},
			obj:  provider.ObjectSummary{Size: 50000},
			want: true,
		},
		{
			name: "range - below min",
			cfg:  &SizeFilterConfig{Min: "1KB", Max: "100KB"},
			obj:  provider.ObjectSummary{Size: 500},
			want: false,
		},
		{
			name: "range - above max",
			cfg:  &SizeFilterConfig{Min: "1KB", Max: "100KB"},
			obj:  provider.ObjectSummary{Size: 200000},
			want: false,
		},
		{
			name: "exact min boundary",
			cfg:  &SizeFilterConfig{Min: "1000"},
			obj:  provider.ObjectSummary{Size: 1000},
			want: true,
		},
		{
			name: "exact max boundary",
			cfg:  &SizeFilterConfig{Max: "1000"},
			obj:  provider.ObjectSummary{Size: 1000},
			want: true,
		},
		{
			name: "zero byte filter - skip empty",
			cfg:  &SizeFilterConfig{Min: "1"},
			obj:  provider.ObjectSummary{Size: 0},
			want: false,
		},
		{
			name:    "min > max error",
			cfg:     &SizeFilterConfig{Min: "100KB", Max: "1KB"},
			wantErr: true,
		},
		{
			name:    "invalid min",
			cfg:     &SizeFilterConfig{Min: "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid max",
			cfg:     &SizeFilterConfig{Max: "xyz"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewSizeFilter(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Match(&tt.obj))
			assert.False(t, f.RequiresEnrichment())
		})
	}
}

func TestSizeFilter_Nil(t *testing.T) {
	f, err := NewSizeFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}
