// Package marketdata loads market entry batches from files or HTTP endpoints.
package marketdata

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

// ErrEmptyFeed is returned when a feed decodes but carries no usable entry.
var ErrEmptyFeed = errors.New("feed has no valid entries")

type envelope struct {
	Symbols []json.RawMessage `json:"symbols"`
}

// ParseFeed decodes a batch given either as {"symbols": [...]} or as a bare list.
// Items that are not objects, lack a symbol or fail to decode are skipped with a warning.
func ParseFeed(raw []byte, l *zap.Logger) ([]domain.MarketEntry, error) {
	if l == nil {
		l = zap.NewNop()
	}

	items, err := splitItems(raw)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.MarketEntry, 0, len(items))
	for i, item := range items {
		entry, err := decodeEntry(item)
		if err != nil {
			l.Warn("skip invalid feed item", zap.Int("index", i), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyFeed
	}
	return entries, nil
}

func splitItems(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFeed
	}

	switch trimmed[0] {
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, errors.Wrap(err, "decode feed envelope")
		}
		if env.Symbols == nil {
			return nil, errors.New("feed object has no 'symbols' list")
		}
		return env.Symbols, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "decode feed list")
		}
		return items, nil
	default:
		return nil, errors.Errorf("feed must be a JSON object or list, got %q", trimmed[0])
	}
}

func decodeEntry(item json.RawMessage) (domain.MarketEntry, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(item, &probe); err != nil {
		return domain.MarketEntry{}, errors.New("item is not an object")
	}
	if _, ok := probe["symbol"]; !ok {
		return domain.MarketEntry{}, errors.New("item has no symbol")
	}

	var entry domain.MarketEntry
	if err := json.Unmarshal(item, &entry); err != nil {
		return domain.MarketEntry{}, errors.Wrap(err, "decode item")
	}
	if entry.Symbol == "" {
		return domain.MarketEntry{}, errors.New("item has an empty symbol")
	}
	return entry, nil
}
