package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
}

func TestSlackNotifierPostsText(t *testing.T) {
	var posted map[string]string
	d := doerFunc(func(req *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&posted))
		return okResponse(), nil
	})

	f := NewSlackFactory(d, "https://hooks.example.com/T/B", "flotilla", 100)
	n := f.ForDeployment("shop")

	require.NoError(t, n.SendStart())
	assert.Equal(t, "Deploy of 'shop' started", posted["text"])
	assert.Equal(t, "flotilla", posted["username"])

	require.NoError(t, n.SendError(errors.New("rollout failed")))
	assert.Equal(t, "Deploy of 'shop' failed: rollout failed", posted["text"])

	require.NoError(t, n.SendEnd())
	assert.Equal(t, "Deploy of 'shop' finished", posted["text"])
}

func TestSlackNotifierWrapsDeliveryErrors(t *testing.T) {
	d := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	n := NewSlackFactory(d, "https://hooks.example.com/T/B", "flotilla", 100).ForDeployment("shop")

	err := n.SendStart()
	require.Error(t, err)
	var failure *Failure
	assert.ErrorAs(t, err, &failure)
}

func TestSlackNotifierNonOKStatus(t *testing.T) {
	d := doerFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			Status:     "410 Gone",
			StatusCode: http.StatusGone,
			Body:       io.NopCloser(strings.NewReader("channel_is_archived")),
		}, nil
	})
	n := NewSlackFactory(d, "https://hooks.example.com/T/B", "flotilla", 100).ForDeployment("shop")

	err := n.SendEnd()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410 Gone")
	assert.Contains(t, err.Error(), "channel_is_archived")
}

func TestSlackNotifierDropsOverRateLimit(t *testing.T) {
	calls := 0
	d := doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return okResponse(), nil
	})
	// Burst of 5, effectively no refill within the test.
	n := NewSlackFactory(d, "https://hooks.example.com/T/B", "flotilla", 0.0001).ForDeployment("shop")

	for i := 0; i < 20; i++ {
		require.NoError(t, n.SendEnd())
	}
	assert.Equal(t, 5, calls)
}

func TestNopFactory(t *testing.T) {
	n := NewNopFactory().ForDeployment("shop")
	assert.NoError(t, n.SendStart())
	assert.NoError(t, n.SendEnd())
	assert.NoError(t, n.SendError(errors.New("x")))
}
