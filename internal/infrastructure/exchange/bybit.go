package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

const BybitBaseURL = "https://api.bybit.com"

// Event codes, band 1200-1299.
const (
	bybitCodeSymbols   = 1201
	bybitCodeStates    = 1202
	bybitCodeMarkets   = 1203
	bybitCodePrice     = 1204
	bybitCodeOrderbook = 1205
	bybitCodeCandles   = 1206
	bybitCodeTrades    = 1207
	bybitCodeAccount   = 1208
	bybitCodeOrder     = 1209
	bybitCodeTransfer  = 1210
	bybitCodeNotFound  = 1211
)

var bybitQuotes = []string{"USDT", "USDC", "BTC"}

type Bybit struct {
	adapterBase
	c *Client
}

func NewBybit(creds domain.Credentials, baseURL string, sink domain.EventSink) *Bybit {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	b := &Bybit{c: NewClient(baseURL)}
	b.name = "bybit"
	b.creds = creds
	b.sink = sink
	b.registry = usecase.NewRegistry(b.name, sink, bybitCodeNotFound)
	b.wallet = usecase.NewWalletTable()
	return b
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *Bybit) get(ctx context.Context, path string, result any) error {
	var env bybitEnvelope
	if err := b.c.GetJSON(ctx, path, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", env.RetCode, env.RetMsg)
	}
	return json.Unmarshal(env.Result, result)
}

// signedDo signs with the V5 scheme: timestamp + apiKey + recvWindow +
// params, where params is the JSON body for POST and the raw query string
// for GET.
func (b *Bybit) signedDo(ctx context.Context, method, path string, payload map[string]any, result any) error {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string
	if payload != nil {
		body, _ = json.Marshal(payload)
		paramsStr = string(body)
	} else if idx := strings.Index(path, "?"); idx != -1 {
		paramsStr = path[idx+1:]
	}

	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.creds.APIKey, recvWindow, paramsStr)
	headers := map[string]string{
		"X-BAPI-API-KEY":     b.creds.APIKey,
		"X-BAPI-TIMESTAMP":   strconv.FormatInt(timestamp, 10),
		"X-BAPI-SIGN":        signHMAC256(b.creds.SecretKey, toSign),
		"X-BAPI-RECV-WINDOW": strconv.Itoa(recvWindow),
		"Content-Type":       "application/json",
	}

	var env bybitEnvelope
	if err := b.c.DoJSON(ctx, method, path, headers, body, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", env.RetCode, env.RetMsg)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(env.Result, result)
}

func (b *Bybit) VerifySymbols(ctx context.Context) bool {
	var v struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/instruments-info?category=spot", &v); err != nil {
		b.fail(err, bybitCodeSymbols)
		b.alive.Store(false)
		return false
	}
	for _, item := range v.List {
		if !strings.EqualFold(item.Status, "Trading") || !supportedQuote(bybitQuotes, item.QuoteCoin) {
			continue
		}
		b.registry.Append(item.Symbol, item.BaseCoin, item.QuoteCoin)
	}
	b.alive.Store(true)
	return true
}

func (b *Bybit) VerifyStates(ctx context.Context) bool {
	if b.creds.Empty() {
		return false
	}
	var v struct {
		Rows []struct {
			Coin   string `json:"coin"`
			Chains []struct {
				Chain         string `json:"chain"`
				ChainType     string `json:"chainType"`
				ChainDeposit  string `json:"chainDeposit"`
				ChainWithdraw string `json:"chainWithdraw"`
				WithdrawFee   string `json:"withdrawFee"`
				WithdrawMin   string `json:"withdrawMin"`
				Confirmation  string `json:"confirmation"`
			} `json:"chains"`
		} `json:"rows"`
	}
	if err := b.signedDo(ctx, "GET", "/v5/asset/coin/query-info", nil, &v); err != nil {
		b.fail(err, bybitCodeStates)
		return false
	}

	for _, row := range v.Rows {
		upd := usecase.CoinUpdate{Base: row.Coin}
		for _, ch := range row.Chains {
			dep := ch.ChainDeposit == "1"
			wd := ch.ChainWithdraw == "1"
			upd.Deposit = upd.Deposit || dep
			upd.Withdraw = upd.Withdraw || wd
			upd.Networks = append(upd.Networks, domain.CoinNetwork{
				Name:          usecase.NetworkKey(row.Coin, ch.Chain),
				Network:       ch.Chain,
				Chain:         ch.ChainType,
				Deposit:       dep,
				Withdraw:      wd,
				WithdrawFee:   parseFloat(ch.WithdrawFee),
				MinWithdrawal: parseFloat(ch.WithdrawMin),
				MinConfirm:    int(parseFloat(ch.Confirmation)),
			})
		}
		st, err := b.wallet.Merge(upd)
		if err != nil {
			b.fail(err, bybitCodeStates)
			continue
		}
		b.registry.ApplyCoinState(st)
	}
	return true
}

func (b *Bybit) GetPrice(ctx context.Context, symbol string) float64 {
	var v struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/tickers?category=spot&symbol="+symbol, &v); err != nil {
		b.fail(err, bybitCodePrice)
		return 0
	}
	if len(v.List) == 0 {
		b.fail(fmt.Errorf("symbol %s not found", symbol), bybitCodePrice)
		return 0
	}
	return parseFloat(v.List[0].LastPrice)
}

func (b *Bybit) refresh(ctx context.Context, withBook, withVolume bool) bool {
	var v struct {
		List []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			Ask1Price   string `json:"ask1Price"`
			Ask1Size    string `json:"ask1Size"`
			Bid1Price   string `json:"bid1Price"`
			Bid1Size    string `json:"bid1Size"`
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/tickers?category=spot", &v); err != nil {
		b.fail(err, bybitCodeMarkets)
		return false
	}

	batch := make(map[string]usecase.MarketDatum, len(v.List))
	for _, row := range v.List {
		batch[row.Symbol] = usecase.MarketDatum{
			Symbol:       row.Symbol,
			Last:         parseFloat(row.LastPrice),
			Ask:          parseFloat(row.Ask1Price),
			AskQty:       parseFloat(row.Ask1Size),
			Bid:          parseFloat(row.Bid1Price),
			BidQty:       parseFloat(row.Bid1Size),
			RawVolume24h: parseFloat(row.Turnover24h),
			HasBook:      withBook,
			HasVolume:    withVolume,
		}
	}
	b.registry.Merge(batch)
	return true
}

func (b *Bybit) GetTickers(ctx context.Context) bool     { return b.refresh(ctx, false, false) }
func (b *Bybit) GetBookTickers(ctx context.Context) bool { return b.refresh(ctx, true, false) }
func (b *Bybit) GetVolumes(ctx context.Context) bool     { return b.refresh(ctx, false, true) }
func (b *Bybit) GetMarkets(ctx context.Context) bool     { return b.refresh(ctx, true, true) }

func (b *Bybit) GetOrderbook(ctx context.Context, symbol string, limit int) domain.OrderBook {
	if limit <= 0 {
		limit = 50
	}
	var v struct {
		S string     `json:"s"`
		B [][]string `json:"b"`
		A [][]string `json:"a"`
	}
	path := fmt.Sprintf("/v5/market/orderbook?category=spot&symbol=%s&limit=%d", symbol, limit)
	if err := b.get(ctx, path, &v); err != nil {
		b.fail(err, bybitCodeOrderbook)
		return domain.OrderBook{Symbol: symbol}
	}
	book := domain.OrderBook{
		Symbol: v.S,
		Asks:   ladder(v.A),
		Bids:   ladder(v.B),
	}
	b.registry.SetBook(symbol, book)
	return book
}

// bybitInterval maps the common timeframe notation onto the V5 kline
// interval tokens.
func bybitInterval(timeframe string) string {
	switch timeframe {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return timeframe
	}
}

func (b *Bybit) GetCandles(ctx context.Context, symbol, timeframe string, since int64, limit int) []domain.Candle {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/v5/market/kline?category=spot&symbol=%s&interval=%s&limit=%d",
		symbol, bybitInterval(timeframe), limit)
	if since > 0 {
		path += "&start=" + strconv.FormatInt(since, 10)
	}
	var v struct {
		List [][]string `json:"list"`
	}
	if err := b.get(ctx, path, &v); err != nil {
		b.fail(err, bybitCodeCandles)
		return nil
	}

	candles := make([]domain.Candle, 0, len(v.List))
	for _, raw := range v.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(raw) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(raw[0], 10, 64)
		candles = append(candles, domain.Candle{
			Time:   ts,
			Open:   parseFloat(raw[1]),
			High:   parseFloat(raw[2]),
			Low:    parseFloat(raw[3]),
			Close:  parseFloat(raw[4]),
			Volume: parseFloat(raw[5]),
		})
	}
	// V5 returns newest first; callers expect chronological order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles
}

func (b *Bybit) GetTrades(ctx context.Context, symbol string, limit int) []domain.PublicTrade {
	if limit <= 0 {
		limit = 100
	}
	var v struct {
		List []struct {
			ExecID string `json:"execId"`
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
			Size   string `json:"size"`
			Price  string `json:"price"`
			Time   string `json:"time"`
		} `json:"list"`
	}
	path := fmt.Sprintf("/v5/market/recent-trade?category=spot&symbol=%s&limit=%d", symbol, limit)
	if err := b.get(ctx, path, &v); err != nil {
		b.fail(err, bybitCodeTrades)
		return nil
	}
	trades := make([]domain.PublicTrade, 0, len(v.List))
	for _, t := range v.List {
		timeMs, _ := strconv.ParseInt(t.Time, 10, 64)
		trades = append(trades, domain.PublicTrade{
			ID:     t.ExecID,
			Symbol: t.Symbol,
			Side:   sideFromToken(t.Side),
			Price:  parseFloat(t.Price),
			Amount: parseFloat(t.Size),
			Time:   timeMs,
		})
	}
	return trades
}

func (b *Bybit) fetchBalances(ctx context.Context) (map[string]domain.Balance, error) {
	var v struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				Locked        string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := b.signedDo(ctx, "GET", "/v5/account/wallet-balance?accountType=UNIFIED", nil, &v); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Balance)
	for _, acct := range v.List {
		for _, c := range acct.Coin {
			total := parseFloat(c.WalletBalance)
			used := parseFloat(c.Locked)
			if total == 0 {
				continue
			}
			out[c.Coin] = domain.Balance{Free: total - used, Used: used, Total: total}
		}
	}
	return out, nil
}

func (b *Bybit) GetBalance(ctx context.Context) map[string]domain.Balance {
	if b.creds.Empty() {
		return map[string]domain.Balance{}
	}
	out, err := b.fetchBalances(ctx)
	if err != nil {
		b.fail(err, bybitCodeAccount)
		return map[string]domain.Balance{}
	}
	return out
}

func (b *Bybit) GetAccount(ctx context.Context) domain.Account {
	acct := domain.Account{Balances: map[string]domain.Balance{}}
	if b.creds.Empty() {
		return acct
	}
	balances, err := b.fetchBalances(ctx)
	if err != nil {
		b.fail(err, bybitCodeAccount)
		return acct
	}
	acct.Balances = balances
	acct.CanTrade = true
	acct.CanDeposit = true
	acct.CanWithdraw = true
	return acct
}

type bybitOrder struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
	CumExecFee  string `json:"cumExecFee"`
}

func (o bybitOrder) normalize() domain.Order {
	amount := parseFloat(o.Qty)
	filled := parseFloat(o.CumExecQty)
	ts, _ := strconv.ParseInt(o.CreatedTime, 10, 64)
	return domain.Order{
		ID:        o.OrderID,
		Symbol:    o.Symbol,
		Side:      sideFromToken(o.Side),
		Type:      strings.ToLower(o.OrderType),
		Price:     parseFloat(o.Price),
		Amount:    amount,
		Filled:    filled,
		Remaining: amount - filled,
		Status:    strings.ToLower(o.OrderStatus),
		Timestamp: ts,
		Fee:       parseFloat(o.CumExecFee),
	}
}

func (b *Bybit) PlaceOrder(ctx context.Context, req domain.OrderRequest) domain.Order {
	if b.creds.Empty() {
		return domain.Order{}
	}
	side := "Sell"
	if req.Side == domain.SideBuy {
		side = "Buy"
	}
	orderType := "Market"
	if strings.EqualFold(req.Type, "limit") {
		orderType = "Limit"
	}
	payload := map[string]any{
		"category":  "spot",
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": orderType,
		"qty":       strconv.FormatFloat(req.Amount, 'f', -1, 64),
	}
	if orderType == "Limit" {
		payload["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		payload["timeInForce"] = "GTC"
	}
	var v struct {
		OrderID string `json:"orderId"`
	}
	if err := b.signedDo(ctx, "POST", "/v5/order/create", payload, &v); err != nil {
		b.fail(err, bybitCodeOrder)
		return domain.Order{}
	}
	return domain.Order{
		ID: v.OrderID, Symbol: req.Symbol, Side: req.Side,
		Type: strings.ToLower(orderType), Price: req.Price, Amount: req.Amount,
		Remaining: req.Amount, Status: "new", Timestamp: time.Now().UnixMilli(),
	}
}

func (b *Bybit) CancelOrder(ctx context.Context, symbol, orderID string) bool {
	if b.creds.Empty() {
		return false
	}
	payload := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}
	if err := b.signedDo(ctx, "POST", "/v5/order/cancel", payload, nil); err != nil {
		b.fail(err, bybitCodeOrder)
		return false
	}
	return true
}

func (b *Bybit) GetOrder(ctx context.Context, symbol, orderID string) domain.Order {
	if b.creds.Empty() {
		return domain.Order{}
	}
	path := fmt.Sprintf("/v5/order/realtime?category=spot&symbol=%s&orderId=%s", symbol, orderID)
	orders := b.listOrders(ctx, path)
	if len(orders) == 0 {
		return domain.Order{}
	}
	return orders[0]
}

func (b *Bybit) GetOpenOrders(ctx context.Context, symbol string) []domain.Order {
	if b.creds.Empty() {
		return nil
	}
	return b.listOrders(ctx, "/v5/order/realtime?category=spot&symbol="+symbol)
}

func (b *Bybit) GetOrderHistory(ctx context.Context, symbol string, limit int) []domain.Order {
	if b.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/v5/order/history?category=spot&symbol=%s&limit=%d", symbol, limit)
	return b.listOrders(ctx, path)
}

func (b *Bybit) listOrders(ctx context.Context, path string) []domain.Order {
	var v struct {
		List []bybitOrder `json:"list"`
	}
	if err := b.signedDo(ctx, "GET", path, nil, &v); err != nil {
		b.fail(err, bybitCodeOrder)
		return nil
	}
	orders := make([]domain.Order, 0, len(v.List))
	for _, row := range v.List {
		orders = append(orders, row.normalize())
	}
	return orders
}

func (b *Bybit) GetTradeHistory(ctx context.Context, symbol string, limit int) []domain.TradeFill {
	if b.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	var v struct {
		List []struct {
			ExecID   string `json:"execId"`
			OrderID  string `json:"orderId"`
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			ExecPrice string `json:"execPrice"`
			ExecQty  string `json:"execQty"`
			ExecFee  string `json:"execFee"`
			FeeCurrency string `json:"feeCurrency"`
			ExecTime string `json:"execTime"`
		} `json:"list"`
	}
	path := fmt.Sprintf("/v5/execution/list?category=spot&symbol=%s&limit=%d", symbol, limit)
	if err := b.signedDo(ctx, "GET", path, nil, &v); err != nil {
		b.fail(err, bybitCodeTrades)
		return nil
	}
	fills := make([]domain.TradeFill, 0, len(v.List))
	for _, row := range v.List {
		ts, _ := strconv.ParseInt(row.ExecTime, 10, 64)
		fills = append(fills, domain.TradeFill{
			ID:        row.ExecID,
			OrderID:   row.OrderID,
			Symbol:    row.Symbol,
			Side:      sideFromToken(row.Side),
			Price:     parseFloat(row.ExecPrice),
			Amount:    parseFloat(row.ExecQty),
			Fee:       parseFloat(row.ExecFee),
			FeeAsset:  row.FeeCurrency,
			Timestamp: ts,
		})
	}
	return fills
}

func (b *Bybit) GetDepositAddress(ctx context.Context, currency string) domain.DepositAddress {
	if b.creds.Empty() {
		return domain.DepositAddress{}
	}
	var v struct {
		Coin   string `json:"coin"`
		Chains []struct {
			Chain         string `json:"chain"`
			AddressDeposit string `json:"addressDeposit"`
			TagDeposit    string `json:"tagDeposit"`
		} `json:"chains"`
	}
	if err := b.signedDo(ctx, "GET", "/v5/asset/deposit/query-address?coin="+currency, nil, &v); err != nil {
		b.fail(err, bybitCodeTransfer)
		return domain.DepositAddress{}
	}
	if len(v.Chains) == 0 {
		return domain.DepositAddress{Currency: currency}
	}
	ch := v.Chains[0]
	return domain.DepositAddress{
		Currency: v.Coin,
		Address:  ch.AddressDeposit,
		Tag:      ch.TagDeposit,
		Network:  ch.Chain,
	}
}

func (b *Bybit) Withdraw(ctx context.Context, currency, address, tag string, amount float64) string {
	if b.creds.Empty() {
		return ""
	}
	payload := map[string]any{
		"coin":      currency,
		"address":   address,
		"amount":    strconv.FormatFloat(amount, 'f', -1, 64),
		"timestamp": time.Now().UnixMilli(),
	}
	if tag != "" {
		payload["tag"] = tag
	}
	var v struct {
		ID string `json:"id"`
	}
	if err := b.signedDo(ctx, "POST", "/v5/asset/withdraw/create", payload, &v); err != nil {
		b.fail(err, bybitCodeTransfer)
		return ""
	}
	return v.ID
}

func (b *Bybit) GetDepositHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	if b.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	var v struct {
		Rows []struct {
			Coin        string `json:"coin"`
			Amount      string `json:"amount"`
			TxID        string `json:"txID"`
			Status      int    `json:"status"`
			ToAddress   string `json:"toAddress"`
			SuccessAt   string `json:"successAt"`
		} `json:"rows"`
	}
	path := fmt.Sprintf("/v5/asset/deposit/query-record?coin=%s&limit=%d", currency, limit)
	if err := b.signedDo(ctx, "GET", path, nil, &v); err != nil {
		b.fail(err, bybitCodeTransfer)
		return nil
	}
	out := make([]domain.Transfer, 0, len(v.Rows))
	for _, row := range v.Rows {
		status := "pending"
		if row.Status == 3 {
			status = "ok"
		}
		ts, _ := strconv.ParseInt(row.SuccessAt, 10, 64)
		out = append(out, domain.Transfer{
			Currency: row.Coin, Amount: parseFloat(row.Amount),
			Address: row.ToAddress, TxID: row.TxID, Status: status, Timestamp: ts,
		})
	}
	return out
}

func (b *Bybit) GetWithdrawalHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	if b.creds.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	var v struct {
		Rows []struct {
			WithdrawID string `json:"withdrawId"`
			Coin       string `json:"coin"`
			Amount     string `json:"amount"`
			TxID       string `json:"txID"`
			Status     string `json:"status"`
			ToAddress  string `json:"toAddress"`
			UpdateTime string `json:"updateTime"`
		} `json:"rows"`
	}
	path := fmt.Sprintf("/v5/asset/withdraw/query-record?coin=%s&limit=%d", currency, limit)
	if err := b.signedDo(ctx, "GET", path, nil, &v); err != nil {
		b.fail(err, bybitCodeTransfer)
		return nil
	}
	out := make([]domain.Transfer, 0, len(v.Rows))
	for _, row := range v.Rows {
		ts, _ := strconv.ParseInt(row.UpdateTime, 10, 64)
		out = append(out, domain.Transfer{
			ID: row.WithdrawID, Currency: row.Coin, Amount: parseFloat(row.Amount),
			Address: row.ToAddress, TxID: row.TxID,
			Status: strings.ToLower(row.Status), Timestamp: ts,
		})
	}
	return out
}
