// Package gateway subscribes to a field gateway's websocket feed of raw
// readings and hands each one to the caller. Connection drops are retried
// with exponential backoff.
package gateway

import (
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

// StartListener blocks, feeding every reading from the gateway at host into
// funcToCall. Returns on interrupt or once the retry budget is exhausted.
func StartListener(host string, useTLS bool, funcToCall func(reading *types.RawReading)) {
	const (
		maxRetries     = 10
		baseRetryDelay = 2 * time.Second
		maxRetryDelay  = 60 * time.Second
	)

	scheme := "ws"
	if useTLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}

	// Channel to handle interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retryCount := 0

	for {
		select {
		case <-interrupt:
			log.Info().Msg("interrupt received, shutting down")
			return
		default:
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}

			if retryCount > 0 {
				log.Warn().
					Dur("delay", retryDelay).
					Int("attempt", retryCount+1).
					Int("max", maxRetries).
					Msg("retrying gateway connection")
				select {
				case <-time.After(retryDelay):
				case <-interrupt:
					log.Info().Msg("interrupt received during retry wait, shutting down")
					return
				}
			}

			log.Info().Str("url", u.String()).Msg("connecting to gateway feed")

			c, _, err := newDialer().Dial(u.String(), nil)
			if err != nil {
				log.Error().Err(err).Msg("gateway connection failed")
				retryCount++
				if retryCount >= maxRetries {
					log.Error().Int("max", maxRetries).Msg("max retries reached, giving up")
					return
				}
				continue
			}

			log.Info().Msg("connected, accepting raw readings")

			// Reset retry count on successful connection
			retryCount = 0

			connectionBroken := handleConnection(c, interrupt, funcToCall)

			c.Close()

			if !connectionBroken {
				// Clean shutdown requested
				return
			}

			log.Warn().Msg("gateway connection lost, will retry")
		}
	}
}

// newDialer returns a fresh dialer so the package never mutates
// websocket.DefaultDialer shared with other packages.
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
}

// handleConnection reads the feed until the connection breaks (true) or an
// interrupt asks for shutdown (false).
func handleConnection(
	c *websocket.Conn,
	interrupt chan os.Signal,
	funcToCall func(reading *types.RawReading),
) bool {
	done := make(chan struct{})

	// Gateways push at least once every few seconds; a silent connection
	// is a dead connection.
	c.SetReadDeadline(time.Now().Add(30 * time.Second))

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Error().Err(err).Msg("websocket error")
				} else {
					log.Info().Err(err).Msg("gateway connection closed")
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(30 * time.Second))

			if messageType == websocket.TextMessage {
				if reading := types.RawReadingFromJsonBytes(message); reading != nil {
					funcToCall(reading)
				} else {
					log.Warn().Msg("discarding unparseable gateway message")
				}
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-interrupt:
		log.Info().Msg("interrupt received, closing gateway connection")
		c.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}
