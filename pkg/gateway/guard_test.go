package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
)

func TestSubmitGuardReleaseOnce(t *testing.T) {
	var released atomic.Int32
	g := NewSubmitGuard()
	g.OnRelease = func(string) { released.Add(1) }

	release, ok := g.Acquire("client")
	require.True(t, ok)
	assert.False(t, g.Enabled("client"))
	assert.True(t, g.Enabled("other"))

	_, ok = g.Acquire("client")
	assert.False(t, ok)

	release()
	release()
	assert.True(t, g.Enabled("client"))
	assert.Equal(t, int32(1), released.Load())

	again, ok := g.Acquire("client")
	require.True(t, ok)
	again()
	assert.Equal(t, int32(2), released.Load())
}

func TestSubmitterDisablesForWholeChain(t *testing.T) {
	guard := NewSubmitGuard()
	var released atomic.Int32
	guard.OnRelease = func(string) { released.Add(1) }

	var enabledDuring []bool
	c := clientFunc(func(req *http.Request) (*http.Response, error) {
		enabledDuring = append(enabledDuring, guard.Enabled("ip"))
		return respond(http.StatusBadGateway, ""), nil
	})
	svc, _ := newTestService(c, chain(2))
	svc.Retries = 1
	sub := &Submitter{Service: svc, Guard: guard}

	_, err := sub.Submit(context.Background(), "ip", "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)
	assert.Equal(t, []bool{false, false, false, false}, enabledDuring)
	assert.True(t, guard.Enabled("ip"))
	assert.Equal(t, int32(1), released.Load())
}

func TestSubmitterRefusesDuplicate(t *testing.T) {
	guard := NewSubmitGuard()
	started := make(chan struct{})
	finish := make(chan struct{})
	c := clientFunc(func(req *http.Request) (*http.Response, error) {
		close(started)
		<-finish
		return respond(http.StatusOK, okBody), nil
	})
	svc, _ := newTestService(c, chain(1))
	sub := &Submitter{Service: svc, Guard: guard}

	done := make(chan error, 1)
	go func() {
		_, err := sub.Submit(context.Background(), "ip", "https://youtu.be/dQw4w9WgXcQ")
		done <- err
	}()

	<-started
	_, err := sub.Submit(context.Background(), "ip", "https://youtu.be/dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrBusy)

	close(finish)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first submission did not finish")
	}
	assert.True(t, guard.Enabled("ip"))
}

func TestAssembleSkipsRelativeWithoutBase(t *testing.T) {
	c := clientFunc(func(req *http.Request) (*http.Response, error) { return respond(200, okBody), nil })

	gw, err := Assemble(Config{}, c, t.TempDir())
	require.NoError(t, err)
	for _, ep := range gw.Service.Endpoints {
		assert.False(t, ep.IsRelative(), ep.Name)
	}
	assert.Len(t, gw.Service.Endpoints, len(endpoints.Defaults)-1)
	assert.Equal(t, DefaultRetries, gw.Service.Retries)

	gw, err = Assemble(Config{BaseURL: "http://localhost:8080", Retries: -1}, c, "")
	require.NoError(t, err)
	assert.Len(t, gw.Service.Endpoints, len(endpoints.Defaults))
	assert.Equal(t, 0, gw.Service.Retries)
	assert.NotNil(t, gw.Submitter.Guard.OnRelease)

	_, err = Assemble(Config{Endpoints: []endpoints.Template{{Name: "l", Pattern: "/x?u={url}"}}}, c, "")
	assert.Error(t, err)
}
