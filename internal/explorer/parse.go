package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"leapScope/internal/model"
)

// blockNumberKeys is the priority order for locating the block number in a
// getblocknobytime result object.
var blockNumberKeys = []string{"blockNumber", "BlockNumber", "block_number", "result"}

// unmarshalUseNumber decodes JSON keeping numbers as json.Number so large
// integers survive intact.
func unmarshalUseNumber(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func decodeResult(raw json.RawMessage) (interface{}, error) {
	var value interface{}
	if err := unmarshalUseNumber(raw, &value); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return value, nil
}

// extractBlockNumber accepts the result as a bare number/string or as an
// object carrying the number under one of several known keys.
func extractBlockNumber(value interface{}) (uint64, error) {
	if obj, ok := value.(map[string]interface{}); ok {
		for _, key := range blockNumberKeys {
			if inner, present := obj[key]; present {
				n, err := model.CoerceUint64(inner)
				if err != nil {
					return 0, fmt.Errorf("key %q: %w", key, err)
				}
				return n, nil
			}
		}
		return 0, fmt.Errorf("result object has none of %v", blockNumberKeys)
	}
	return model.CoerceUint64(value)
}

// parseLogRow normalizes one explorer log row. Topics may arrive either as
// an array or as topic0..topic3 named fields; numeric fields may be hex or
// decimal strings.
func parseLogRow(chainKey string, row map[string]interface{}) (model.EventLog, error) {
	address, ok := model.CoerceAddress(row["address"])
	if !ok {
		return model.EventLog{}, fmt.Errorf("bad address %v", row["address"])
	}

	txHash, _ := row["transactionHash"].(string)
	if txHash == "" {
		return model.EventLog{}, fmt.Errorf("missing transactionHash")
	}

	blockNumber, err := model.CoerceUint64(row["blockNumber"])
	if err != nil {
		return model.EventLog{}, fmt.Errorf("blockNumber: %w", err)
	}

	topics, err := extractTopics(row)
	if err != nil {
		return model.EventLog{}, err
	}

	data, _ := row["data"].(string)
	if data == "" {
		data = "0x"
	}

	return model.EventLog{
		ChainKey:    chainKey,
		BlockNumber: blockNumber,
		Timestamp:   optionalUint(row, "timeStamp"),
		TxHash:      strings.ToLower(txHash),
		LogIndex:    optionalUint(row, "logIndex"),
		Address:     address,
		Topics:      topics,
		Data:        strings.ToLower(data),
	}, nil
}

func extractTopics(row map[string]interface{}) ([]string, error) {
	if raw, present := row["topics"]; present {
		arr, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("topics is %T, not an array", raw)
		}
		topics := make([]string, 0, len(arr))
		for i, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("topic %d is %T, not a string", i, item)
			}
			topics = append(topics, strings.ToLower(s))
		}
		return topics, nil
	}

	// Fall back to topic0..topic3 named fields, stopping at the first gap.
	var topics []string
	for i := 0; i < 4; i++ {
		s, ok := row[fmt.Sprintf("topic%d", i)].(string)
		if !ok || s == "" || s == "0x" {
			break
		}
		topics = append(topics, strings.ToLower(s))
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("row has no topics")
	}
	return topics, nil
}

// optionalUint reads a numeric field that explorers sometimes omit or emit
// as a bare "0x"; those degrade to zero, anything else malformed fails hard
// upstream of here via CoerceUint64 in required fields.
func optionalUint(row map[string]interface{}, key string) uint64 {
	raw, present := row[key]
	if !present {
		return 0
	}
	if s, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" || trimmed == "0x" {
			return 0
		}
	}
	n, err := model.CoerceUint64(raw)
	if err != nil {
		return 0
	}
	return n
}
