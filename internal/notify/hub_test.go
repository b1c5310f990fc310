package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	h := New()
	assert.Equal(t, 0, h.PublishCopyResult(1, nil))
}

func TestPublishFansOut(t *testing.T) {
	h := New()
	a, b := NewChan("a", 1), NewChan("b", 1)
	h.Subscribe(a)
	h.Subscribe(b)

	assert.Equal(t, 2, h.Publish(EventOpenFiles, OpenFiles{FilePaths: []string{"/tmp/doc.md"}}))
	for _, c := range []*Chan{a, b} {
		ev := <-c.C()
		assert.Equal(t, EventOpenFiles, ev.Name)
		assert.Equal(t, []string{"/tmp/doc.md"}, ev.Payload.(OpenFiles).FilePaths)
	}

	h.Unsubscribe(a)
	assert.Equal(t, 1, h.Len())
}

func TestSendNeverBlocks(t *testing.T) {
	h := New()
	c := NewChan("slow", 1)
	h.Subscribe(c)
	h.PublishCopyResult(1, nil)
	h.PublishCopyResult(2, nil)

	assert.Equal(t, 0, h.PublishCopyResult(3, nil), "full buffer counts as not taken")

	ev := <-c.C()
	assert.EqualValues(t, 1, ev.Payload.(CopyResult).Version)
	select {
	case ev := <-c.C():
		t.Fatalf("unexpected second event %v", ev)
	default:
	}
}

func TestChanFilterCountsOnlyAcceptedEvents(t *testing.T) {
	h := New()
	waiter := NewChan("waiter", 4, EventCopyResult)
	h.Subscribe(waiter)

	assert.Equal(t, 0, h.Publish(EventOpenFiles, OpenFiles{FilePaths: []string{"/tmp/doc.md"}}))
	assert.Equal(t, 0, h.Publish(EventWindow, Window{Action: "show"}))
	assert.Equal(t, 1, h.PublishCopyResult(7, nil))

	ev := <-waiter.C()
	assert.Equal(t, EventCopyResult, ev.Name)
	assert.Empty(t, waiter.C())
}

func TestNewCopyResult(t *testing.T) {
	ok := NewCopyResult(1, nil)
	assert.Equal(t, CopyResult{Success: true, Version: 1}, ok)

	failed := NewCopyResult(2, errors.New("failed to spawn wl-copy: not found"))
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "failed to spawn wl-copy: not found", *failed.Error)
	assert.EqualValues(t, 2, failed.Version)
}

func TestVersionTrackerDiscardsStaleResults(t *testing.T) {
	var vt VersionTracker
	for vt.Latest() < 4 {
		vt.Next()
	}
	v5, v6 := vt.Next(), vt.Next()
	require.EqualValues(t, 5, v5)
	require.EqualValues(t, 6, v6)

	// Results arrive newest first; the late v5 result must be ignored.
	var kept []uint32
	for _, r := range []CopyResult{NewCopyResult(v6, nil), NewCopyResult(v5, errors.New("late"))} {
		if vt.Current(r) {
			kept = append(kept, r.Version)
		}
	}
	assert.Equal(t, []uint32{6}, kept)

	// And in the other order too.
	kept = kept[:0]
	for _, r := range []CopyResult{NewCopyResult(v5, nil), NewCopyResult(v6, nil)} {
		if vt.Current(r) {
			kept = append(kept, r.Version)
		}
	}
	assert.Equal(t, []uint32{6}, kept)
}
