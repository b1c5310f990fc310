package clip

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.design/x/clipboard"

	"go.klb.dev/omnimark/internal/imagecodec"
)

func redPixel() *imagecodec.Image {
	return &imagecodec.Image{Width: 1, Height: 1, Pixels: []byte{255, 0, 0, 255}, Format: "png"}
}

func TestNativeWritesPNG(t *testing.T) {
	var gotFmt clipboard.Format
	var gotBuf []byte
	n := NewNative(false)
	n.initFn = func() error { return nil }
	n.writeFn = func(f clipboard.Format, b []byte) <-chan struct{} {
		gotFmt, gotBuf = f, b
		return make(chan struct{})
	}

	require.NoError(t, n.Write(context.Background(), &Payload{Image: redPixel()}))
	assert.Equal(t, clipboard.FmtImage, gotFmt)

	img, err := png.Decode(bytes.NewReader(gotBuf))
	require.NoError(t, err)
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
}

func TestNativeInitFailureIsUnavailable(t *testing.T) {
	calls := 0
	n := NewNative(false)
	n.initFn = func() error {
		calls++
		return errors.New("no display")
	}
	n.writeFn = func(clipboard.Format, []byte) <-chan struct{} {
		t.Fatal("write must not be attempted")
		return nil
	}

	for i := 0; i < 2; i++ {
		err := n.Write(context.Background(), &Payload{Image: redPixel()})
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "no display")
	}
	assert.Equal(t, 1, calls, "init runs once")
}

func TestNativeDisabled(t *testing.T) {
	n := NewNative(true)
	n.initFn = func() error {
		t.Fatal("init must not run when disabled")
		return nil
	}
	require.ErrorIs(t, n.Write(context.Background(), &Payload{Image: redPixel()}), ErrUnavailable)
}

func TestNativeRejectedWrite(t *testing.T) {
	n := NewNative(false)
	n.initFn = func() error { return nil }
	n.writeFn = func(clipboard.Format, []byte) <-chan struct{} { return nil }

	require.ErrorIs(t, n.Write(context.Background(), &Payload{Image: redPixel()}), ErrWriteFailed)
}

func TestNativeWithoutImage(t *testing.T) {
	n := NewNative(false)
	n.initFn = func() error { return nil }
	require.ErrorIs(t, n.Write(context.Background(), &Payload{Raw: []byte("x")}), ErrWriteFailed)
}
