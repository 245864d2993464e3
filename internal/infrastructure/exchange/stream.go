package exchange

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

const BinanceWSURL = "wss://stream.binance.com:9443/ws"

const streamCodeRead = 1050

// TickerStream pushes live last-price updates from the binance miniTicker
// channel into the adapter's registry. Writes go through the registry's own
// lock, so the stream and the REST refresh loop never race.
type TickerStream struct {
	url      string
	exchange string
	registry *usecase.Registry
	sink     domain.EventSink

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
	done   chan struct{}
}

func NewBinanceStream(b *Binance, wsURL string) *TickerStream {
	if wsURL == "" {
		wsURL = BinanceWSURL
	}
	return &TickerStream{
		url:      wsURL,
		exchange: b.Name(),
		registry: b.Registry(),
		sink:     b.sink,
		done:     make(chan struct{}),
	}
}

// Connect dials on first use; repeated calls only send new subscriptions.
func (s *TickerStream) Connect(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		c, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			return err
		}
		s.conn = c
		go s.readLoop(c)
	}
	return s.subscribe(symbols)
}

func (s *TickerStream) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, len(symbols))
	for i, sym := range symbols {
		params[i] = strings.ToLower(sym) + "@miniTicker"
	}
	s.nextID++
	return s.conn.WriteJSON(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     s.nextID,
	})
}

func (s *TickerStream) readLoop(c *websocket.Conn) {
	defer func() {
		c.Close()
		s.mu.Lock()
		if s.conn == c {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	for {
		var event struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
			Close     string `json:"c"`
		}
		if err := c.ReadJSON(&event); err != nil {
			select {
			case <-s.done:
			default:
				s.sink.Emit(s.exchange, err, streamCodeRead)
			}
			return
		}
		if event.EventType != "24hrMiniTicker" || event.Symbol == "" {
			continue
		}
		s.registry.SetLast(event.Symbol, parseFloat(event.Close))
	}
}

func (s *TickerStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
