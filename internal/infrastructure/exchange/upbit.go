package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

const UpbitBaseURL = "https://api.upbit.com"

// Event codes, band 1100-1199.
const (
	upbitCodeSymbols   = 1101
	upbitCodeStates    = 1102
	upbitCodeMarkets   = 1103
	upbitCodePrice     = 1104
	upbitCodeOrderbook = 1105
	upbitCodeCandles   = 1106
	upbitCodeTrades    = 1107
	upbitCodeAccount   = 1108
	upbitCodeOrder     = 1109
	upbitCodeTransfer  = 1110
	upbitCodeNotFound  = 1111
)

// Upbit market codes are "QUOTE-BASE"; KRW markets are already in the
// display fiat, BTC and USDT markets go through the bridge.
var upbitQuotes = []string{"KRW", "BTC", "USDT"}

type Upbit struct {
	adapterBase
	c *Client
}

func NewUpbit(creds domain.Credentials, baseURL string, sink domain.EventSink) *Upbit {
	if baseURL == "" {
		baseURL = UpbitBaseURL
	}
	u := &Upbit{c: NewClient(baseURL)}
	u.name = "upbit"
	u.creds = creds
	u.sink = sink
	u.registry = usecase.NewRegistry(u.name, sink, upbitCodeNotFound)
	u.wallet = usecase.NewWalletTable()
	return u
}

// authToken builds the HS256 JWT upbit expects, with a SHA512 hash of the
// query string when one is present.
func (u *Upbit) authToken(query string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	nonce := make([]byte, 16)
	rand.Read(nonce)
	claims := map[string]any{
		"access_key": u.creds.APIKey,
		"nonce":      hex.EncodeToString(nonce),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	payloadJSON, _ := json.Marshal(claims)
	payload := base64.RawURLEncoding.EncodeToString(payloadJSON)

	mac := hmac.New(sha256.New, []byte(u.creds.SecretKey))
	mac.Write([]byte(header + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return header + "." + payload + "." + sig
}

func (u *Upbit) authHeaders(query string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + u.authToken(query),
		"Content-Type":  "application/json",
	}
}

func (u *Upbit) VerifySymbols(ctx context.Context) bool {
	var rows []struct {
		Market string `json:"market"`
	}
	if err := u.c.GetJSON(ctx, "/v1/market/all", &rows); err != nil {
		u.fail(err, upbitCodeSymbols)
		u.alive.Store(false)
		return false
	}
	for _, row := range rows {
		quote, base, ok := strings.Cut(row.Market, "-")
		if !ok || !supportedQuote(upbitQuotes, quote) {
			continue
		}
		u.registry.Append(row.Market, base, quote)
	}
	u.alive.Store(true)
	return true
}

func (u *Upbit) VerifyStates(ctx context.Context) bool {
	if u.creds.Empty() {
		return false
	}
	var rows []struct {
		Currency    string `json:"currency"`
		WalletState string `json:"wallet_state"`
		NetType     string `json:"net_type"`
		NetworkName string `json:"network_name"`
	}
	if err := u.c.DoJSON(ctx, "GET", "/v1/status/wallet", u.authHeaders(""), nil, &rows); err != nil {
		u.fail(err, upbitCodeStates)
		return false
	}

	// one row per (currency, network); fold rows into per-currency updates
	byBase := make(map[string]*usecase.CoinUpdate)
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		deposit := row.WalletState == "working" || row.WalletState == "deposit_only"
		withdraw := row.WalletState == "working" || row.WalletState == "withdraw_only"

		upd, ok := byBase[row.Currency]
		if !ok {
			upd = &usecase.CoinUpdate{Base: row.Currency}
			byBase[row.Currency] = upd
			order = append(order, row.Currency)
		}
		upd.Deposit = upd.Deposit || deposit
		upd.Withdraw = upd.Withdraw || withdraw
		upd.Networks = append(upd.Networks, domain.CoinNetwork{
			Name:     usecase.NetworkKey(row.Currency, row.NetType),
			Network:  row.NetType,
			Chain:    row.NetworkName,
			Deposit:  deposit,
			Withdraw: withdraw,
		})
	}
	for _, base := range order {
		st, err := u.wallet.Merge(*byBase[base])
		if err != nil {
			u.fail(err, upbitCodeStates)
			continue
		}
		u.registry.ApplyCoinState(st)
	}
	return true
}

func (u *Upbit) GetPrice(ctx context.Context, symbol string) float64 {
	var rows []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := u.c.GetJSON(ctx, "/v1/ticker?markets="+symbol, &rows); err != nil {
		u.fail(err, upbitCodePrice)
		return 0
	}
	if len(rows) == 0 {
		u.fail(fmt.Errorf("symbol %s not found", symbol), upbitCodePrice)
		return 0
	}
	return rows[0].TradePrice
}

// fetchTickers pulls the batch quote for the registry's active symbols.
// Upbit has no all-markets ticker endpoint; the market list goes into the
// query string.
func (u *Upbit) fetchTickers(ctx context.Context, withVolume bool) (map[string]usecase.MarketDatum, error) {
	symbols := u.registry.ActiveSymbols()
	if len(symbols) == 0 {
		return map[string]usecase.MarketDatum{}, nil
	}
	var rows []struct {
		Market           string  `json:"market"`
		TradePrice       float64 `json:"trade_price"`
		AccTradePrice24h float64 `json:"acc_trade_price_24h"`
	}
	path := "/v1/ticker?markets=" + strings.Join(symbols, ",")
	if err := u.c.GetJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	batch := make(map[string]usecase.MarketDatum, len(rows))
	for _, row := range rows {
		batch[row.Market] = usecase.MarketDatum{
			Symbol:       row.Market,
			Last:         row.TradePrice,
			RawVolume24h: row.AccTradePrice24h,
			HasVolume:    withVolume,
		}
	}
	return batch, nil
}

// fetchBooks merges best ask/bid into an existing batch.
func (u *Upbit) fetchBooks(ctx context.Context, batch map[string]usecase.MarketDatum) error {
	symbols := u.registry.ActiveSymbols()
	if len(symbols) == 0 {
		return nil
	}
	var rows []struct {
		Market         string `json:"market"`
		OrderbookUnits []struct {
			AskPrice float64 `json:"ask_price"`
			BidPrice float64 `json:"bid_price"`
			AskSize  float64 `json:"ask_size"`
			BidSize  float64 `json:"bid_size"`
		} `json:"orderbook_units"`
	}
	path := "/v1/orderbook?markets=" + strings.Join(symbols, ",")
	if err := u.c.GetJSON(ctx, path, &rows); err != nil {
		return err
	}
	for _, row := range rows {
		if len(row.OrderbookUnits) == 0 {
			continue
		}
		d, ok := batch[row.Market]
		if !ok {
			continue
		}
		top := row.OrderbookUnits[0]
		d.Ask = top.AskPrice
		d.AskQty = top.AskSize
		d.Bid = top.BidPrice
		d.BidQty = top.BidSize
		d.HasBook = true
		batch[row.Market] = d
	}
	return nil
}

func (u *Upbit) refresh(ctx context.Context, withBook, withVolume bool) bool {
	batch, err := u.fetchTickers(ctx, withVolume)
	if err != nil {
		u.fail(err, upbitCodeMarkets)
		return false
	}
	if withBook {
		if err := u.fetchBooks(ctx, batch); err != nil {
			u.fail(err, upbitCodeMarkets)
			return false
		}
	}
	u.registry.Merge(batch)
	return true
}

func (u *Upbit) GetTickers(ctx context.Context) bool     { return u.refresh(ctx, false, false) }
func (u *Upbit) GetBookTickers(ctx context.Context) bool { return u.refresh(ctx, true, false) }
func (u *Upbit) GetVolumes(ctx context.Context) bool     { return u.refresh(ctx, false, true) }
func (u *Upbit) GetMarkets(ctx context.Context) bool     { return u.refresh(ctx, true, true) }

func (u *Upbit) GetOrderbook(ctx context.Context, symbol string, limit int) domain.OrderBook {
	var rows []struct {
		Market         string `json:"market"`
		OrderbookUnits []struct {
			AskPrice float64 `json:"ask_price"`
			BidPrice float64 `json:"bid_price"`
			AskSize  float64 `json:"ask_size"`
			BidSize  float64 `json:"bid_size"`
		} `json:"orderbook_units"`
	}
	if err := u.c.GetJSON(ctx, "/v1/orderbook?markets="+symbol, &rows); err != nil {
		u.fail(err, upbitCodeOrderbook)
		return domain.OrderBook{Symbol: symbol}
	}
	if len(rows) == 0 {
		u.fail(fmt.Errorf("symbol %s not found", symbol), upbitCodeOrderbook)
		return domain.OrderBook{Symbol: symbol}
	}

	book := domain.OrderBook{Symbol: symbol}
	var askTotal, bidTotal float64
	units := rows[0].OrderbookUnits
	if limit > 0 && limit < len(units) {
		units = units[:limit]
	}
	for _, unit := range units {
		askTotal += unit.AskSize
		bidTotal += unit.BidSize
		book.Asks = append(book.Asks, domain.OrderBookEntry{
			Price: unit.AskPrice, Quantity: unit.AskSize, Total: askTotal,
		})
		book.Bids = append(book.Bids, domain.OrderBookEntry{
			Price: unit.BidPrice, Quantity: unit.BidSize, Total: bidTotal,
		})
	}
	u.registry.SetBook(symbol, book)
	return book
}

func upbitCandlePath(symbol, timeframe string, limit int) string {
	unit := "1"
	switch timeframe {
	case "1m":
		unit = "1"
	case "5m":
		unit = "5"
	case "15m":
		unit = "15"
	case "1h":
		unit = "60"
	case "4h":
		unit = "240"
	case "1d":
		return fmt.Sprintf("/v1/candles/days?market=%s&count=%d", symbol, limit)
	}
	return fmt.Sprintf("/v1/candles/minutes/%s?market=%s&count=%d", unit, symbol, limit)
}

func (u *Upbit) GetCandles(ctx context.Context, symbol, timeframe string, since int64, limit int) []domain.Candle {
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		Timestamp    int64   `json:"timestamp"`
		OpeningPrice float64 `json:"opening_price"`
		HighPrice    float64 `json:"high_price"`
		LowPrice     float64 `json:"low_price"`
		TradePrice   float64 `json:"trade_price"`
		AccVolume    float64 `json:"candle_acc_trade_volume"`
	}
	if err := u.c.GetJSON(ctx, upbitCandlePath(symbol, timeframe, limit), &rows); err != nil {
		u.fail(err, upbitCodeCandles)
		return nil
	}
	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if since > 0 && row.Timestamp < since {
			continue
		}
		candles = append(candles, domain.Candle{
			Time:   row.Timestamp,
			Open:   row.OpeningPrice,
			High:   row.HighPrice,
			Low:    row.LowPrice,
			Close:  row.TradePrice,
			Volume: row.AccVolume,
		})
	}
	// newest first from the vendor
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles
}

func (u *Upbit) GetTrades(ctx context.Context, symbol string, limit int) []domain.PublicTrade {
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		SequentialID int64   `json:"sequential_id"`
		TradePrice   float64 `json:"trade_price"`
		TradeVolume  float64 `json:"trade_volume"`
		AskBid       string  `json:"ask_bid"`
		Timestamp    int64   `json:"timestamp"`
	}
	path := fmt.Sprintf("/v1/trades/ticks?market=%s&count=%d", symbol, limit)
	if err := u.c.GetJSON(ctx, path, &rows); err != nil {
		u.fail(err, upbitCodeTrades)
		return nil
	}
	trades := make([]domain.PublicTrade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, domain.PublicTrade{
			ID:     strconv.FormatInt(row.SequentialID, 10),
			Symbol: symbol,
			Side:   sideFromToken(row.AskBid),
			Price:  row.TradePrice,
			Amount: row.TradeVolume,
			Time:   row.Timestamp,
		})
	}
	return trades
}

func (u *Upbit) GetBalance(ctx context.Context) map[string]domain.Balance {
	out := make(map[string]domain.Balance)
	if u.creds.Empty() {
		return out
	}
	var rows []struct {
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
		Locked   string `json:"locked"`
	}
	if err := u.c.DoJSON(ctx, "GET", "/v1/accounts", u.authHeaders(""), nil, &rows); err != nil {
		u.fail(err, upbitCodeAccount)
		return out
	}
	for _, row := range rows {
		free := parseFloat(row.Balance)
		used := parseFloat(row.Locked)
		out[row.Currency] = domain.Balance{Free: free, Used: used, Total: free + used}
	}
	return out
}

func (u *Upbit) GetAccount(ctx context.Context) domain.Account {
	acct := domain.Account{Balances: u.GetBalance(ctx)}
	if len(acct.Balances) > 0 {
		acct.CanTrade = true
		acct.CanDeposit = true
		acct.CanWithdraw = true
	}
	return acct
}

type upbitOrder struct {
	UUID            string `json:"uuid"`
	Market          string `json:"market"`
	Side            string `json:"side"`
	OrdType         string `json:"ord_type"`
	Price           string `json:"price"`
	Volume          string `json:"volume"`
	ExecutedVolume  string `json:"executed_volume"`
	RemainingVolume string `json:"remaining_volume"`
	State           string `json:"state"`
	PaidFee         string `json:"paid_fee"`
	CreatedAt       string `json:"created_at"`
}

func (o upbitOrder) normalize() domain.Order {
	return domain.Order{
		ID:        o.UUID,
		Symbol:    o.Market,
		Side:      sideFromToken(o.Side),
		Type:      o.OrdType,
		Price:     parseFloat(o.Price),
		Amount:    parseFloat(o.Volume),
		Filled:    parseFloat(o.ExecutedVolume),
		Remaining: parseFloat(o.RemainingVolume),
		Status:    o.State,
		Fee:       parseFloat(o.PaidFee),
	}
}

func (u *Upbit) PlaceOrder(ctx context.Context, req domain.OrderRequest) domain.Order {
	if u.creds.Empty() {
		return domain.Order{}
	}
	side := "ask"
	if req.Side == domain.SideBuy {
		side = "bid"
	}
	params := url.Values{}
	params.Set("market", req.Symbol)
	params.Set("side", side)
	params.Set("volume", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	params.Set("ord_type", "limit")
	query := params.Encode()

	body := make(map[string]string, len(params))
	for k := range params {
		body[k] = params.Get(k)
	}
	payload, _ := json.Marshal(body)

	var v upbitOrder
	if err := u.c.DoJSON(ctx, "POST", "/v1/orders", u.authHeaders(query), payload, &v); err != nil {
		u.fail(err, upbitCodeOrder)
		return domain.Order{}
	}
	return v.normalize()
}

func (u *Upbit) CancelOrder(ctx context.Context, symbol, orderID string) bool {
	if u.creds.Empty() {
		return false
	}
	query := "uuid=" + orderID
	if err := u.c.DoJSON(ctx, "DELETE", "/v1/order?"+query, u.authHeaders(query), nil, nil); err != nil {
		u.fail(err, upbitCodeOrder)
		return false
	}
	return true
}

func (u *Upbit) GetOrder(ctx context.Context, symbol, orderID string) domain.Order {
	if u.creds.Empty() {
		return domain.Order{}
	}
	query := "uuid=" + orderID
	var v upbitOrder
	if err := u.c.DoJSON(ctx, "GET", "/v1/order?"+query, u.authHeaders(query), nil, &v); err != nil {
		u.fail(err, upbitCodeOrder)
		return domain.Order{}
	}
	return v.normalize()
}

func (u *Upbit) GetOpenOrders(ctx context.Context, symbol string) []domain.Order {
	return u.listOrders(ctx, symbol, "wait", 0)
}

func (u *Upbit) GetOrderHistory(ctx context.Context, symbol string, limit int) []domain.Order {
	return u.listOrders(ctx, symbol, "done", limit)
}

func (u *Upbit) listOrders(ctx context.Context, symbol, state string, limit int) []domain.Order {
	if u.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("market", symbol)
	params.Set("state", state)
	params.Set("limit", strconv.Itoa(limit))
	query := params.Encode()

	var rows []upbitOrder
	if err := u.c.DoJSON(ctx, "GET", "/v1/orders?"+query, u.authHeaders(query), nil, &rows); err != nil {
		u.fail(err, upbitCodeOrder)
		return nil
	}
	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.normalize())
	}
	return orders
}

func (u *Upbit) GetTradeHistory(ctx context.Context, symbol string, limit int) []domain.TradeFill {
	// upbit reports fills inside closed orders rather than a flat
	// execution list; flatten the done orders instead.
	orders := u.GetOrderHistory(ctx, symbol, limit)
	fills := make([]domain.TradeFill, 0, len(orders))
	for _, o := range orders {
		if o.Filled == 0 {
			continue
		}
		fills = append(fills, domain.TradeFill{
			ID:        o.ID,
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Price:     o.Price,
			Amount:    o.Filled,
			Fee:       o.Fee,
			Timestamp: o.Timestamp,
		})
	}
	return fills
}

func (u *Upbit) GetDepositAddress(ctx context.Context, currency string) domain.DepositAddress {
	if u.creds.Empty() {
		return domain.DepositAddress{}
	}
	query := "currency=" + currency
	var v struct {
		Currency         string `json:"currency"`
		NetType          string `json:"net_type"`
		DepositAddress   string `json:"deposit_address"`
		SecondaryAddress string `json:"secondary_address"`
	}
	if err := u.c.DoJSON(ctx, "GET", "/v1/deposits/coin_address?"+query, u.authHeaders(query), nil, &v); err != nil {
		u.fail(err, upbitCodeTransfer)
		return domain.DepositAddress{}
	}
	return domain.DepositAddress{
		Currency: v.Currency,
		Address:  v.DepositAddress,
		Tag:      v.SecondaryAddress,
		Network:  v.NetType,
	}
}

func (u *Upbit) Withdraw(ctx context.Context, currency, address, tag string, amount float64) string {
	if u.creds.Empty() {
		return ""
	}
	params := url.Values{}
	params.Set("currency", currency)
	params.Set("address", address)
	params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	if tag != "" {
		params.Set("secondary_address", tag)
	}
	query := params.Encode()

	body := make(map[string]string, len(params))
	for k := range params {
		body[k] = params.Get(k)
	}
	payload, _ := json.Marshal(body)

	var v struct {
		UUID string `json:"uuid"`
	}
	if err := u.c.DoJSON(ctx, "POST", "/v1/withdraws/coin", u.authHeaders(query), payload, &v); err != nil {
		u.fail(err, upbitCodeTransfer)
		return ""
	}
	return v.UUID
}

func (u *Upbit) GetDepositHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	return u.listTransfers(ctx, "/v1/deposits", currency, limit)
}

func (u *Upbit) GetWithdrawalHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	return u.listTransfers(ctx, "/v1/withdraws", currency, limit)
}

func (u *Upbit) listTransfers(ctx context.Context, endpoint, currency string, limit int) []domain.Transfer {
	if u.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	if currency != "" {
		params.Set("currency", currency)
	}
	params.Set("limit", strconv.Itoa(limit))
	query := params.Encode()

	var rows []struct {
		UUID     string `json:"uuid"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
		TxID     string `json:"txid"`
		State    string `json:"state"`
	}
	if err := u.c.DoJSON(ctx, "GET", endpoint+"?"+query, u.authHeaders(query), nil, &rows); err != nil {
		u.fail(err, upbitCodeTransfer)
		return nil
	}
	out := make([]domain.Transfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Transfer{
			ID:       row.UUID,
			Currency: row.Currency,
			Amount:   parseFloat(row.Amount),
			TxID:     row.TxID,
			Status:   strings.ToLower(row.State),
		})
	}
	return out
}
