// Package chain is the producer collaborator: it polls pool contracts over
// JSON-RPC for spot prices and scans swap logs for volume events. Nothing in
// here touches aggregation state; the tracker consumes it behind interfaces.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

const (
	// slot0() selector; sqrtPriceX96 is the first return word
	slot0Selector = "0x3850c7bd"
	// keccak256 of the standard Swap event signature
	swapTopic = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
)

// Client talks to an EVM JSON-RPC endpoint.
type Client struct {
	cfg    *config.ChainConfig
	http   *http.Client
	logger *logrus.Entry

	mu         sync.Mutex
	nextID     int64
	lastBlock  map[string]int64
	lastPrices map[string]float64
}

// NewClient creates a chain client from configuration.
func NewClient(cfg *config.ChainConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.WithField("component", "chain"),
		lastBlock:  make(map[string]int64),
		lastPrices: make(map[string]float64),
	}
}

// FetchPrice reads the pool's current sqrt price via eth_call and converts
// it to a float price. The sample timestamp is the local receive time.
func (c *Client) FetchPrice(ctx context.Context, pool string) (float64, int64, error) {
	params := []interface{}{
		map[string]string{"to": pool, "data": slot0Selector},
		"latest",
	}
	result, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return 0, 0, fmt.Errorf("slot0 call for %s failed: %w", pool, err)
	}

	raw := result.String()
	if len(raw) < 2+wordHexLen {
		return 0, 0, fmt.Errorf("slot0 returned short data for %s: %q", pool, raw)
	}
	sqrtPrice, err := parseUnsignedWord(raw[2 : 2+wordHexLen])
	if err != nil {
		return 0, 0, fmt.Errorf("bad sqrtPriceX96 for %s: %w", pool, err)
	}

	price := PriceFromSqrtX96(sqrtPrice, c.cfg.Token0Decimals, c.cfg.Token1Decimals)
	if price <= 0 {
		return 0, 0, fmt.Errorf("pool %s returned non-positive price", pool)
	}

	c.mu.Lock()
	c.lastPrices[pool] = price
	c.mu.Unlock()

	return price, time.Now().UnixMilli(), nil
}

// FetchVolume scans swap logs emitted by the pool since the previous scan
// and converts them to USD volume samples using the pool's latest price.
// Log timestamps are the local receive time; window sums tolerate that skew.
func (c *Client) FetchVolume(ctx context.Context, pool string) ([]models.VolumeSample, error) {
	head, err := c.blockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read head block: %w", err)
	}

	c.mu.Lock()
	from := c.lastBlock[pool]
	price := c.lastPrices[pool]
	c.mu.Unlock()
	if from == 0 {
		// first scan starts at the head; historical volume is not replayed
		c.mu.Lock()
		c.lastBlock[pool] = head
		c.mu.Unlock()
		return nil, nil
	}
	if from >= head {
		return nil, nil
	}

	params := []interface{}{map[string]interface{}{
		"address":   pool,
		"topics":    []string{swapTopic},
		"fromBlock": hexBlock(from + 1),
		"toBlock":   hexBlock(head),
	}}
	result, err := c.call(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, fmt.Errorf("swap log scan for %s failed: %w", pool, err)
	}

	now := time.Now().UnixMilli()
	var samples []models.VolumeSample
	for _, log := range result.Array() {
		event, err := DecodeSwap(log.Get("data").String())
		if err != nil {
			c.logger.WithError(err).WithField("pool", pool).Warn("Skipping undecodable swap log")
			continue
		}
		usd := swapVolumeUSD(event, price, c.cfg.Token0Decimals)
		if usd <= 0 {
			continue
		}
		samples = append(samples, models.VolumeSample{AmountUSD: usd, Timestamp: now})
	}

	c.mu.Lock()
	c.lastBlock[pool] = head
	c.mu.Unlock()

	return samples, nil
}

// swapVolumeUSD values a swap by its token0 leg at the pool's latest price.
func swapVolumeUSD(event *SwapEvent, price float64, decimals0 int) float64 {
	if event.Amount0 == nil || price <= 0 {
		return 0
	}
	amount := new(big.Float).SetInt(new(big.Int).Abs(event.Amount0))
	amount.Quo(amount, new(big.Float).SetInt(pow10(decimals0)))
	base, _ := amount.Float64()
	return base * price
}

func (c *Client) blockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(result.String(), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", result.String(), err)
	}
	return n, nil
}

// call performs one JSON-RPC request and returns the result field.
func (c *Client) call(ctx context.Context, method string, params interface{}) (gjson.Result, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("rpc returned status %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read rpc response: %w", err)
	}

	parsed := gjson.ParseBytes(buf.Bytes())
	if rpcErr := parsed.Get("error"); rpcErr.Exists() {
		return gjson.Result{}, fmt.Errorf("rpc error %s: %s",
			rpcErr.Get("code").String(), rpcErr.Get("message").String())
	}
	return parsed.Get("result"), nil
}

func hexBlock(n int64) string {
	return "0x" + strconv.FormatInt(n, 16)
}
