package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// SlackFactory builds webhook notifiers. A rate limiter is shared
// across deployments so a burst of deploys cannot flood the channel;
// messages over the limit are dropped, which is acceptable for a
// fire-and-forget signal.
type SlackFactory struct {
	d          Doer
	webhookURL string
	username   string
	limiter    *rate.Limiter
}

func NewSlackFactory(d Doer, webhookURL, username string, perSecond float64) *SlackFactory {
	return &SlackFactory{
		d:          d,
		webhookURL: webhookURL,
		username:   username,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 5),
	}
}

func (f *SlackFactory) ForDeployment(name string) Notifier {
	return &slackNotifier{factory: f, deployment: name}
}

type slackNotifier struct {
	factory    *SlackFactory
	deployment string
}

func (s *slackNotifier) SendStart() error {
	return s.post(fmt.Sprintf("Deploy of '%s' started", s.deployment))
}

func (s *slackNotifier) SendEnd() error {
	return s.post(fmt.Sprintf("Deploy of '%s' finished", s.deployment))
}

func (s *slackNotifier) SendError(err error) error {
	return s.post(fmt.Sprintf("Deploy of '%s' failed: %v", s.deployment, err))
}

func (s *slackNotifier) post(text string) error {
	if !s.factory.limiter.Allow() {
		return nil
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(map[string]string{
		"username": s.factory.username,
		"text":     text,
	}); err != nil {
		return &Failure{Err: errors.Wrap(err, "encoding webhook request")}
	}

	req, err := http.NewRequest("POST", s.factory.webhookURL, buf)
	if err != nil {
		return &Failure{Err: errors.Wrap(err, "constructing webhook request")}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.factory.d.Do(req)
	if err != nil {
		return &Failure{Err: errors.Wrap(err, "executing webhook POST")}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		return &Failure{Err: fmt.Errorf("%s from webhook (%s)", resp.Status, strings.TrimSpace(string(body)))}
	}
	return nil
}
