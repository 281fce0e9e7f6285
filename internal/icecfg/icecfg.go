// Package icecfg fetches ICE-server configuration from the signaling
// service. Configuration is best effort: any transport failure, non-2xx
// status or malformed body degrades to a hardcoded public-STUN fallback so
// call setup never dies on configuration.
package icecfg

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 5 * time.Second

// fallbackSTUN is used whenever the endpoint cannot be reached or trusted.
var fallbackSTUN = []string{"stun:stun.l.google.com:19302"}

// Server is one STUN/TURN entry as returned by the endpoint.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Response is the endpoint's body. Some deployments also hand back a session
// token and room identifier; both are optional.
type Response struct {
	ICEServers []Server `json:"iceServers"`
	Token      string   `json:"token,omitempty"`
	Room       string   `json:"room,omitempty"`
}

// Fetcher retrieves ICE configuration over HTTP.
type Fetcher struct {
	client *resty.Client
	path   string
}

// NewFetcher builds a fetcher for baseURL+path. An empty baseURL is legal
// and yields the fallback configuration on every call.
func NewFetcher(baseURL, path string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Fetcher{client: c, path: path}
}

// Fallback is the STUN-only configuration used when no endpoint is
// available.
func Fallback() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: fallbackSTUN},
		},
	}
}

// Config fetches the current ICE-server configuration. It never fails:
// every problem is logged and answered with Fallback().
func (f *Fetcher) Config(ctx context.Context) webrtc.Configuration {
	if f == nil || f.client.BaseURL == "" {
		return Fallback()
	}

	var body Response
	res, err := f.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(f.path)
	if err != nil {
		log.Warn().Err(err).Str("module", "icecfg").Msg("ice config fetch failed, using fallback")
		return Fallback()
	}
	if !res.IsSuccess() || len(body.ICEServers) == 0 {
		log.Warn().
			Str("module", "icecfg").
			Str("status", res.Status()).
			Int("servers", len(body.ICEServers)).
			Msg("unusable ice config response, using fallback")
		return Fallback()
	}

	cfg := webrtc.Configuration{}
	for _, s := range body.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, srv)
	}
	if len(cfg.ICEServers) == 0 {
		return Fallback()
	}

	log.Debug().Str("module", "icecfg").Int("servers", len(cfg.ICEServers)).Msg("ice config fetched")
	return cfg
}
