package discovery_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-protocol/arbor-go/pkg/discovery"
	"github.com/arbor-protocol/arbor-go/pkg/version"
)

func TestNewAdvertiserDefaults(t *testing.T) {
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{DeviceID: "dev8047"})
	require.NoError(t, err)
	defer adv.Close()

	assert.Equal(t, "dev8047", adv.Instance())
	assert.Equal(t, []string{"id=dev8047", "proto=" + version.Current}, adv.TXT())
}

func TestNewAdvertiserRequiresDeviceID(t *testing.T) {
	_, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	assert.ErrorIs(t, err, discovery.ErrMissingDeviceID)
}

func TestNewAdvertiserOverrides(t *testing.T) {
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		DeviceID:        "dev8047",
		Instance:        "Bench Rack 3",
		ProtocolVersion: "2.1",
	})
	require.NoError(t, err)
	defer adv.Close()

	assert.Equal(t, "Bench Rack 3", adv.Instance())
	assert.Contains(t, adv.TXT(), "proto=2.1")
}

func TestNewAdvertiserTruncatesInstance(t *testing.T) {
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		DeviceID: strings.Repeat("x", 80),
	})
	require.NoError(t, err)
	defer adv.Close()

	assert.Len(t, adv.Instance(), discovery.MaxInstanceNameLen)
}

func TestAdvertiserCloseWithoutAnnounce(t *testing.T) {
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{DeviceID: "dev8047"})
	require.NoError(t, err)

	adv.Close()
	adv.Close()
}

func TestBrowserFindTimesOut(t *testing.T) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{})

	start := time.Now()
	_, err := browser.Find(context.Background(), "no-such-device", 150*time.Millisecond)
	assert.ErrorIs(t, err, discovery.ErrNotFound)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBrowseReturnsWithinTimeout(t *testing.T) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{})

	start := time.Now()
	found, err := browser.Browse(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Non-Arbor services never make it through TXT parsing.
	for _, f := range found {
		assert.NotEmpty(t, f.DeviceID)
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	for range browser.Watch(ctx) {
	}
}
