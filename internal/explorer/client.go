package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"leapScope/internal/chain"
	"leapScope/internal/httpretry"
	"leapScope/internal/model"
)

const (
	defaultPageSize = 1000
	defaultMaxPages = 10
)

// envelope is the response wrapper every Etherscan-style API uses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Client queries an Etherscan-style explorer API for one chain.
type Client struct {
	chainKey string
	base     string
	http     *httpretry.Client
	limiter  *rate.Limiter
	logger   *zap.Logger

	pageSize int
	maxPages int
}

// NewClient builds an explorer client rooted at the given API base.
func NewClient(chainKey, base string, httpClient *httpretry.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		chainKey: chainKey,
		base:     base,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(4), 2),
		logger:   logger.With(zap.String("chain", chainKey)),
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
	}
}

func (c *Client) call(ctx context.Context, params url.Values) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var env envelope
	if err := c.http.GetJSON(ctx, c.base, params, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// BlockNumberByTime resolves a timestamp to a block number through the
// explorer's getblocknobytime action. The numeric result is parsed
// defensively: explorers disagree on where the number lives.
func (c *Client) BlockNumberByTime(ctx context.Context, ts int64, closest chain.Closest) (uint64, error) {
	if ts < 0 {
		ts = 0
	}
	params := url.Values{}
	params.Set("module", "block")
	params.Set("action", "getblocknobytime")
	params.Set("timestamp", strconv.FormatInt(ts, 10))
	params.Set("closest", string(closest))

	env, err := c.call(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("explorer getblocknobytime: %w", err)
	}
	if env.Status != "1" {
		return 0, fmt.Errorf("explorer getblocknobytime: %s (%s)", env.Message, resultText(env.Result))
	}

	value, err := decodeResult(env.Result)
	if err != nil {
		return 0, fmt.Errorf("explorer getblocknobytime result: %w", err)
	}
	number, err := extractBlockNumber(value)
	if err != nil {
		return 0, fmt.Errorf("explorer getblocknobytime result: %w", err)
	}
	return number, nil
}

// LogQuery describes one explorer getLogs call. TopicFilters adds
// positional topic constraints joined to topic0 with an AND operator.
type LogQuery struct {
	Range        model.BlockRange
	Address      string
	Topic0       string
	TopicFilters map[int]string
}

// Logs fetches all logs matching the query, following explorer pagination
// while pages come back exactly full. The accumulated result is capped at
// maxPages full pages.
func (c *Client) Logs(ctx context.Context, q LogQuery) ([]model.EventLog, error) {
	all := make([]model.EventLog, 0)

	for page := 1; page <= c.maxPages; page++ {
		params := url.Values{}
		params.Set("module", "logs")
		params.Set("action", "getLogs")
		params.Set("fromBlock", strconv.FormatUint(q.Range.From, 10))
		params.Set("toBlock", strconv.FormatUint(q.Range.To, 10))
		params.Set("address", q.Address)
		params.Set("topic0", q.Topic0)
		params.Set("page", strconv.Itoa(page))
		params.Set("offset", strconv.Itoa(c.pageSize))
		for position, topic := range q.TopicFilters {
			params.Set(fmt.Sprintf("topic%d", position), topic)
			params.Set(fmt.Sprintf("topic0_%d_opr", position), "and")
		}

		env, err := c.call(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("explorer getLogs page %d: %w", page, err)
		}
		if env.Status != "1" {
			if isNoRecords(env) {
				return all, nil
			}
			return nil, fmt.Errorf("explorer getLogs page %d: %s (%s)", page, env.Message, resultText(env.Result))
		}

		var rows []map[string]interface{}
		if err := unmarshalUseNumber(env.Result, &rows); err != nil {
			return nil, fmt.Errorf("explorer getLogs page %d: %w", page, err)
		}
		for i, row := range rows {
			log, err := parseLogRow(c.chainKey, row)
			if err != nil {
				return nil, fmt.Errorf("explorer getLogs page %d row %d: %w", page, i, err)
			}
			all = append(all, log)
		}

		if len(rows) < c.pageSize {
			return all, nil
		}
	}

	c.logger.Warn("explorer pagination cap reached, result truncated",
		zap.Int("pages", c.maxPages),
		zap.Int("logs", len(all)))
	return all, nil
}

// isNoRecords distinguishes the explorer's empty result from a real error;
// both arrive with status "0".
func isNoRecords(env *envelope) bool {
	msg := strings.ToLower(env.Message)
	if strings.Contains(msg, "no records found") || strings.Contains(msg, "no logs found") {
		return true
	}
	return strings.Contains(strings.ToLower(resultText(env.Result)), "no records found")
}

func resultText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		s = str
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
