package control

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/omnimark/internal/clip"
	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/crypto"
	"go.klb.dev/omnimark/internal/message"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/pending"
	"go.klb.dev/omnimark/internal/shell"
)

type rejectingCopier struct{}

func (rejectingCopier) Queue(copier.Request) error { return copier.ErrQueueFull }

type harness struct {
	srv   *Server
	hub   *notify.Hub
	store *pending.Store
}

func newHarness(t *testing.T, cp Copier, token string) *harness {
	t.Helper()
	hub := notify.New()
	store := pending.NewStore(nil)
	key, err := crypto.KeyForToken(token)
	require.NoError(t, err)
	srv := &Server{
		Copier:  cp,
		Pending: store,
		Events:  hub,
		Shell:   shell.New(hub, nil),
		Token:   token,
		Key:     key,
	}
	return &harness{srv: srv, hub: hub, store: store}
}

func (h *harness) client(t *testing.T, token string) *Client {
	t.Helper()
	a, b := net.Pipe()
	go h.srv.ServeConn(b)
	c, err := NewClient(a, token, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sinkHelper(t *testing.T) *clip.Helper {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	return &clip.Helper{Command: "sh", Args: []string{"-c", "cat >/dev/null"}}
}

func redPNGBase64(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newCopier(hub *notify.Hub, primary, fallback clip.Writer) *copier.Copier {
	return copier.New(primary, fallback,
		copier.NotifierFunc(func(o copier.Outcome) { hub.PublishCopyResult(o.Version, o.Err) }),
		copier.Config{Workers: 2})
}

func TestCopyAndWaitSuccess(t *testing.T) {
	h := newHarness(t, nil, "")
	cp := newCopier(h.hub, clip.NewNative(true), sinkHelper(t))
	defer cp.Close()
	h.srv.Copier = cp

	c := h.client(t, "")
	r, err := c.CopyAndWait(redPNGBase64(t), 1)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Nil(t, r.Error)
	assert.EqualValues(t, 1, r.Version)
}

func TestCopyAndWaitSpawnFailure(t *testing.T) {
	h := newHarness(t, nil, "")
	helper := &clip.Helper{Command: filepath.Join(t.TempDir(), "wl-copy")}
	cp := newCopier(h.hub, clip.NewNative(true), helper)
	defer cp.Close()
	h.srv.Copier = cp

	c := h.client(t, "")
	r, err := c.CopyAndWait(redPNGBase64(t), 2)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.EqualValues(t, 2, r.Version)
	require.NotNil(t, r.Error)
	assert.Contains(t, *r.Error, "failed to spawn wl-copy")
}

func TestSchedulingFailureIsReportedSynchronously(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	c := h.client(t, "")
	err := c.CopyImage("aGVsbG8=", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy queue full")
}

func TestPendingFilesDrainOnce(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	h.store.Set([]string{"/tmp/doc.md"})
	c := h.client(t, "")

	got, err := c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/doc.md"}, got)

	got, err = c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}

func TestOpenFilesWithSubscriberEmitsEvent(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(doc, nil, 0o644))
	want, err := filepath.EvalSymlinks(doc)
	require.NoError(t, err)

	h := newHarness(t, rejectingCopier{}, "")
	ui := h.client(t, "")
	require.NoError(t, ui.Subscribe())

	relay := h.client(t, "")
	require.NoError(t, relay.OpenFiles([]string{doc}))

	ev, err := ui.Next()
	require.NoError(t, err)
	assert.Equal(t, notify.EventOpenFiles, ev.Event)
	var payload notify.OpenFiles
	require.NoError(t, ev.DecodePayload(&payload))
	assert.Equal(t, []string{want}, payload.FilePaths)
	assert.Equal(t, 0, h.store.Len(), "delivered paths are not also queued")
}

func TestOpenFilesWithoutSubscriberIsKept(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	c := h.client(t, "")
	require.NoError(t, c.OpenFiles([]string{"/does/not/exist.md"}))

	got, err := c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/does/not/exist.md"}, got)
}

func TestWindowAndMenu(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	ui := h.client(t, "")
	require.NoError(t, ui.Subscribe())

	ctl := h.client(t, "")
	require.NoError(t, ctl.Window(shell.ActionHide))
	require.Error(t, ctl.Window("explode"))
	require.NoError(t, ctl.Menu(shell.MenuOpenFile))

	ev, err := ui.Next()
	require.NoError(t, err)
	var w notify.Window
	require.NoError(t, ev.DecodePayload(&w))
	assert.Equal(t, shell.ActionHide, w.Action)

	ev, err = ui.Next()
	require.NoError(t, err)
	assert.Equal(t, notify.EventTrayOpenFile, ev.Event)
}

func TestAuth(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "s3cret")
	h.store.Set([]string{"/a.md"})

	c := h.client(t, "s3cret")
	got, err := c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.md"}, got)

	a, b := net.Pipe()
	go h.srv.ServeConn(b)
	_, err = NewClient(a, "wrong", "test")
	assert.Error(t, err)
}

func TestUnknownMessageType(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	c := h.client(t, "")
	_, err := c.request(&message.Message{Type: "BOGUS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected message type")
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	c := h.client(t, "")
	require.NoError(t, c.Subscribe())
	require.Eventually(t, func() bool { return h.hub.Len() == 1 }, time.Second, time.Millisecond)

	h.srv.CloseAll()
	require.Eventually(t, func() bool { return h.hub.Len() == 0 }, 5*time.Second, time.Millisecond)
}

func TestOpenFilesKeptWhenOnlyNonUISubscribersListen(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")

	waiter := notify.NewChan("http/copy-wait", 16, notify.EventCopyResult)
	h.hub.Subscribe(waiter)
	copyCLI := h.client(t, "")
	require.NoError(t, copyCLI.Subscribe(notify.EventCopyResult))
	watcher := h.client(t, "")
	require.NoError(t, watcher.Monitor())
	require.Equal(t, 3, h.hub.Len())

	relay := h.client(t, "")
	require.NoError(t, relay.OpenFiles([]string{"/tmp/doc.md"}))

	ev, err := watcher.Next()
	require.NoError(t, err)
	assert.Equal(t, notify.EventOpenFiles, ev.Event)

	h.hub.Unsubscribe(waiter)
	ui := h.client(t, "")
	got, err := ui.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/doc.md"}, got)
}

func TestRepliesSurviveEventBacklog(t *testing.T) {
	h := newHarness(t, rejectingCopier{}, "")
	h.store.Set([]string{"/tmp/doc.md"})
	ui := h.client(t, "")
	require.NoError(t, ui.Subscribe())

	for i := 0; i < 4*sendBuffer; i++ {
		h.hub.Publish(notify.EventWindow, notify.Window{Action: shell.ActionShow})
	}

	type result struct {
		paths []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		paths, err := ui.PendingFiles()
		done <- result{paths, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []string{"/tmp/doc.md"}, r.paths)
	case <-time.After(5 * time.Second):
		t.Fatal("pending reply was dropped")
	}
}
