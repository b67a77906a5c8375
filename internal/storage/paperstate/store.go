// Package paperstate persists the paper broker so restarts keep balance and open positions.
package paperstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const DefaultDir = "./wal/paper"

// Store is a JSON file holding one paper account.
type Store struct {
	path string
}

// NewStore creates a store for scope under dir.
func NewStore(dir, scope string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create paper state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "account"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// State represents all persisted paper broker data.
type State struct {
	Balance    string           `json:"balance"`
	NextTicket int64            `json:"next_ticket"`
	Positions  []StoredPosition `json:"positions"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// StoredPosition is a serializable snapshot of domain.Position.
type StoredPosition struct {
	Ticket     int64           `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Side       domain.Decision `json:"side"`
	Volume     string          `json:"volume"`
	EntryPrice string          `json:"entry_price"`
	SL         string          `json:"sl,omitempty"`
	TP         []string        `json:"tp,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Load reads state from disk. A missing or empty file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read paper state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode paper state")
	}

	return &state, nil
}

// Save writes state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode paper state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write paper state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist paper state")
	}

	return nil
}

// NewStoredPosition converts a position into its stored representation.
func NewStoredPosition(pos domain.Position, openedAt time.Time) StoredPosition {
	sp := StoredPosition{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Volume:     decimal.NewFromFloat(pos.Volume).String(),
		EntryPrice: decimal.NewFromFloat(pos.EntryPrice).String(),
		Comment:    pos.Comment,
		OpenedAt:   openedAt,
	}
	if pos.SL != nil {
		sp.SL = decimal.NewFromFloat(*pos.SL).String()
	}
	for _, tp := range pos.TP {
		sp.TP = append(sp.TP, decimal.NewFromFloat(tp).String())
	}
	return sp
}

// ToPosition reconstructs the position from stored data. Profit is left at zero.
func (sp StoredPosition) ToPosition() (domain.Position, error) {
	volume, err := decimal.NewFromString(sp.Volume)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "decode position volume")
	}

	entry, err := decimal.NewFromString(sp.EntryPrice)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "decode position entry price")
	}

	pos := domain.Position{
		Ticket:     sp.Ticket,
		Symbol:     sp.Symbol,
		Side:       sp.Side,
		Volume:     volume.InexactFloat64(),
		EntryPrice: entry.InexactFloat64(),
		Comment:    sp.Comment,
	}

	if sp.SL != "" {
		sl, err := decimal.NewFromString(sp.SL)
		if err != nil {
			return domain.Position{}, errors.Wrap(err, "decode position stop loss")
		}
		v := sl.InexactFloat64()
		pos.SL = &v
	}

	for _, raw := range sp.TP {
		tp, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Position{}, errors.Wrap(err, "decode position take profit")
		}
		pos.TP = append(pos.TP, tp.InexactFloat64())
	}

	return pos, nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
