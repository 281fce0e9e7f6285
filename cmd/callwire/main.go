// Command callwire is a demo peer: it connects to a relay, waits for an
// incoming call or places one, and logs call lifecycle events.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/nkrett/callwire/internal/adapters/media"
	"github.com/nkrett/callwire/internal/adapters/rtc"
	"github.com/nkrett/callwire/internal/adapters/signal"
	"github.com/nkrett/callwire/internal/call"
	"github.com/nkrett/callwire/internal/config"
	"github.com/nkrett/callwire/internal/core"
	"github.com/nkrett/callwire/internal/icecfg"
)

// logEvents reports session lifecycle to the terminal. It stands in for the
// UI collaborator.
type logEvents struct {
	done context.CancelFunc
}

func (e *logEvents) Established() { log.Info().Msg("call established") }
func (e *logEvents) Failed(err error) {
	log.Error().Err(err).Msg("call failed")
	e.done()
}
func (e *logEvents) Closed() {
	log.Info().Msg("call closed")
	e.done()
}
func (e *logEvents) RemoteTrack(t core.RemoteTrack) {
	log.Info().Str("kind", t.Kind().String()).Str("track_id", t.ID()).Msg("remote track")
}

func main() {
	var (
		relayURL = pflag.String("relay", "ws://localhost:8080/api/ws/signal", "relay signaling endpoint")
		apiBase  = pflag.String("api", "", "ICE config API base URL (empty: public STUN fallback)")
		identity = pflag.String("id", "", "our peer identity (default: random)")
		callee   = pflag.String("call", "", "peer identity to call; empty means wait for a call")
		mute     = pflag.Bool("mute", false, "start with audio muted")
	)
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if *apiBase == "" {
		*apiBase = cfg.APIBaseURL
	}
	if *identity == "" {
		*identity = uuid.NewString()
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	callCtx, callDone := context.WithCancel(ctx)
	defer callDone()

	fetcher := icecfg.NewFetcher(*apiBase, cfg.ICEEndpointPath, cfg.FetchTimeout)

	channel, err := signal.Dial(ctx, *relayURL, *identity)
	if err != nil {
		log.Error().Err(err).Msg("relay dial failed")
		os.Exit(1)
	}
	defer channel.Close()

	session := call.NewSession(call.Config{
		Identity:      *identity,
		Links:         rtc.Factory(fetcher),
		Media:         media.NewSyntheticSource(),
		Signals:       channel,
		Events:        &logEvents{done: callDone},
		SetupTimeout:  cfg.SetupTimeout,
		GatherTimeout: cfg.GatherTimeout,
	})

	// The session exists before the read pump starts, so envelopes can
	// never observe a half-built handler.
	channel.Listen(func(env core.Envelope) {
		session.HandleEnvelope(ctx, env)
	})

	if *mute {
		session.MuteAudio(true)
	}

	if *callee != "" {
		offer, err := session.Initiate(ctx, *callee)
		if err != nil {
			log.Error().Err(err).Msg("call setup failed")
			session.Teardown()
			os.Exit(1)
		}
		if err := channel.Send(core.Envelope{
			Type:    core.EnvelopeOffer,
			From:    *identity,
			To:      *callee,
			Call:    session.CallID(),
			Payload: offer,
		}); err != nil {
			log.Error().Err(err).Msg("offer send failed")
			session.Teardown()
			os.Exit(1)
		}
		log.Info().Str("callee", *callee).Msg("calling")
	} else {
		log.Info().Str("id", *identity).Msg("waiting for a call")
	}

	<-callCtx.Done()
	session.Hangup()
}
