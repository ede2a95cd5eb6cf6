package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

func testPayload() []byte {
	return bytes.Repeat([]byte("id,name,score\n1,alice,1.5\n2,bob,2.25\n"), 200)
}

func TestCompressorRoundTrip(t *testing.T) {
	original := testPayload()

	for _, algo := range Algorithms {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(algo)+"/"+level.String(), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: algo, Level: level})
				require.NoError(t, err)
				assert.Equal(t, algo, comp.Algorithm())
				assert.Equal(t, level, comp.Level())

				compressed, err := comp.Compress(original)
				require.NoError(t, err)

				decompressed, err := comp.Decompress(compressed)
				require.NoError(t, err)
				assert.Equal(t, original, decompressed)

				if algo != None {
					assert.Less(t, len(compressed), len(original))
				}
			})
		}
	}
}

func TestCompressorStreamRoundTrip(t *testing.T) {
	original := testPayload()

	for _, algo := range Algorithms {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			require.NoError(t, err)

			var compressed bytes.Buffer
			require.NoError(t, comp.CompressStream(&compressed, bytes.NewReader(original)))

			var decompressed bytes.Buffer
			require.NoError(t, comp.DecompressStream(&decompressed, &compressed))
			assert.Equal(t, original, decompressed.Bytes())
		})
	}
}

func TestNewCompressorDefaultsToZlib(t *testing.T) {
	comp, err := NewCompressor(nil)
	require.NoError(t, err)
	assert.Equal(t, Zlib, comp.Algorithm())
	assert.Equal(t, Default, comp.Level())
}

func TestNewCompressorUnsupported(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"GZIP", Gzip, false},
		{"zstd", Zstd, false},
		{"lz4", LZ4, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if tt.wantErr {
			assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeConfig), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []Level{Fastest, Default, Better, Best} {
		got, err := ParseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, got)
	}

	got, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, Default, got)

	_, err = ParseLevel("max")
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "unknown compression level: max")
}

func TestAlgorithmExtension(t *testing.T) {
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, "", None.Extension())
}
