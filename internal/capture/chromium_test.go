package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsNormalized(t *testing.T) {
	got, err := Options{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}.normalized()
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, got.Width)
	assert.Equal(t, DefaultHeight, got.Height)
	assert.Equal(t, DefaultTimeout, got.Timeout)

	got, err = Options{URL: "u", OutputPath: "o", Width: 1080, Height: 1920, Timeout: time.Second}.normalized()
	require.NoError(t, err)
	assert.Equal(t, 1080, got.Width)
	assert.Equal(t, time.Second, got.Timeout)
}

func TestCapturePagePNGRequiresTarget(t *testing.T) {
	err := CapturePagePNG(context.Background(), Options{OutputPath: "out.png"})
	assert.ErrorContains(t, err, "URL is required")

	err = CapturePagePNG(context.Background(), Options{URL: "http://127.0.0.1:8080/"})
	assert.ErrorContains(t, err, "OutputPath is required")
}
