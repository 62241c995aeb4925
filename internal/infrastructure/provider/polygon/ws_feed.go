package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
	"emax/internal/domain/session"
)

// WSFeed streams live minute aggregates (the vendor's "AM" channel) and
// normalizes them the same way the REST client does. It reconnects with
// exponential backoff until the context is cancelled.
type WSFeed struct {
	wsURL  string
	apiKey string
}

func NewWSFeed(wsURL, apiKey string) *WSFeed {
	return &WSFeed{wsURL: wsURL, apiKey: apiKey}
}

func (f *WSFeed) Name() string { return "polygon-am" }

// amEvent is one live minute-aggregate message.
type amEvent struct {
	Event  string   `json:"ev"`
	Symbol string   `json:"sym"`
	Open   *float64 `json:"o"`
	High   *float64 `json:"h"`
	Low    *float64 `json:"l"`
	Close  *float64 `json:"c"`
	Volume *float64 `json:"v"`
	Start  *int64   `json:"s"` // bar start, unix ms
}

type controlMsg struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Subscribe implements port.BarFeed.
func (f *WSFeed) Subscribe(ctx context.Context, symbols []string) (<-chan model.Bar, error) {
	if f.wsURL == "" {
		return nil, errors.New("provider ws_url is empty")
	}
	if len(symbols) == 0 {
		return nil, errors.New("symbols list is empty")
	}

	out := make(chan model.Bar, 256)
	go f.run(ctx, symbols, out)
	return out, nil
}

func (f *WSFeed) run(ctx context.Context, symbols []string, out chan<- model.Bar) {
	defer close(out)

	backoff := 500 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.connectOnce(ctx, symbols, out)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("feed", f.Name()).Msg("feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *WSFeed) connectOnce(ctx context.Context, symbols []string, out chan<- model.Bar) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(controlMsg{Action: "auth", Params: f.apiKey}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, "AM."+strings.ToUpper(s))
	}
	if err := conn.WriteJSON(controlMsg{Action: "subscribe", Params: strings.Join(streams, ",")}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	return f.readLoop(ctx, conn, out)
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.Bar) error {
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			f.handleMessage(data, out)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// The reader goroutine may still be sending into out. Unblock it
			// by closing the connection and wait for it to exit before
			// returning, so run never closes out under a concurrent send.
			_ = conn.Close()
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (f *WSFeed) handleMessage(data []byte, out chan<- model.Bar) {
	var events []amEvent
	if err := json.Unmarshal(data, &events); err != nil {
		// Status/control frames are not aggregate arrays; skip them.
		return
	}

	for _, ev := range events {
		if ev.Event != "AM" || ev.Symbol == "" {
			continue
		}
		if ev.Open == nil || ev.High == nil || ev.Low == nil || ev.Close == nil || ev.Volume == nil || ev.Start == nil {
			continue
		}
		bar := model.Bar{
			Symbol:    strings.ToUpper(ev.Symbol),
			Timestamp: time.UnixMilli(*ev.Start).UTC(),
			Open:      *ev.Open,
			High:      *ev.High,
			Low:       *ev.Low,
			Close:     roundClose(*ev.Close),
			Volume:    int64(*ev.Volume),
		}
		if !session.InRegularSession(bar.Timestamp) {
			continue
		}
		select {
		case out <- bar:
		default:
			log.Warn().Str("symbol", bar.Symbol).Msg("feed buffer full, dropping bar")
		}
	}
}

var _ port.BarFeed = (*WSFeed)(nil)
