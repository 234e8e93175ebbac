package yadisk

import (
	"errors"
	"net/http"
	"time"

	"github.com/imroc/req/v3"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/retry"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/version"
)

// ErrNoToken is returned when the session is opened without an OAuth token.
var ErrNoToken = errors.New("yadisk: oauth token is empty")

// Options configures a Yandex.Disk session.
type Options struct {
	APIURL  string
	Token   string
	Timeout time.Duration // metadata requests; uploads are bounded by ctx only
	Poll    retry.Options // async operation polling
}

// New opens a session against the Yandex.Disk REST API.
func New(o Options) (*Provider, error) {
	if o.Token == "" {
		return nil, ErrNoToken
	}
	if o.APIURL == "" {
		o.APIURL = config.DefaultYadiskAPIURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}

	client := req.C().
		SetBaseURL(o.APIURL).
		SetTimeout(o.Timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader("Authorization", "OAuth "+o.Token).
		SetCommonHeader("Accept", "application/json").
		SetCommonErrorResult(&APIError{})

	return &Provider{
		client:  client,
		upload:  &http.Client{},
		poll:    o.Poll,
		removed: map[string]int{},
	}, nil
}

func init() {
	provider.Register("yadisk", func(cfg config.Config, token string) (provider.Provider, error) {
		p, err := New(Options{
			APIURL:  cfg.Yadisk.APIURL,
			Token:   token,
			Timeout: cfg.HTTPTimeout,
			Poll:    cfg.PollOptions(),
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}
