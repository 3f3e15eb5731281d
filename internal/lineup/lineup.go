// Package lineup handles parsing and validation of a user's per-round lineup:
// a mapping from roster slot name to the picked player, or null for an empty
// slot.
package lineup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// MaxSlots bounds the number of roster slots in a single lineup.
const MaxSlots = 16

// slotRegex matches slot names such as "goalkeeper", "defender_1" or "ATK-2".
var slotRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,31}$`)

var (
	ErrInvalidLineup = errors.New("lineup: invalid lineup")
	ErrInvalidSlot   = errors.New("lineup: invalid slot name")
)

// Pick is one player selected for a slot. Only ID takes part in scoring.
// Every other field the client sent, known or not, is stored and returned
// untouched.
type Pick struct {
	ID       int64
	Name     string
	Position string
	ImageURL string

	// Extra holds the client fields Pick has no name for, as raw JSON.
	Extra map[string]json.RawMessage
}

type pickFields struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Position string `json:"position,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

var pickKeys = map[string]bool{"id": true, "name": true, "position": true, "image_url": true}

func (p *Pick) UnmarshalJSON(data []byte) error {
	var f pickFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*p = Pick{ID: f.ID, Name: f.Name, Position: f.Position, ImageURL: f.ImageURL}
	for k, v := range all {
		if pickKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

func (p Pick) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(pickFields{ID: p.ID, Name: p.Name, Position: p.Position, ImageURL: p.ImageURL})
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}

	out := make(map[string]json.RawMessage, len(p.Extra)+len(pickKeys))
	for k, v := range p.Extra {
		out[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// Lineup maps slot name to pick. A nil Pick is an empty slot.
type Lineup map[string]*Pick

// Parse decodes and validates a lineup document. A JSON null or an empty
// document is rejected: clearing a lineup is done by settlement, not by users.
func Parse(data []byte) (Lineup, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: lineup is required", ErrInvalidLineup)
	}

	var l Lineup
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLineup, err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks slot names, slot count and pick IDs.
func (l Lineup) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: at least one slot is required", ErrInvalidLineup)
	}
	if len(l) > MaxSlots {
		return fmt.Errorf("%w: %d slots (max %d)", ErrInvalidLineup, len(l), MaxSlots)
	}
	for slot, pick := range l {
		if !slotRegex.MatchString(slot) {
			return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
		}
		if pick != nil && pick.ID <= 0 {
			return fmt.Errorf("%w: slot %q has no player id", ErrInvalidLineup, slot)
		}
	}
	return nil
}

// PlayerIDs returns the distinct player IDs referenced by the lineup, sorted
// ascending. Empty slots and picks without a positive ID are ignored. A
// player picked in two slots appears once, so it is scored once.
func (l Lineup) PlayerIDs() []int64 {
	seen := make(map[int64]struct{}, len(l))
	ids := make([]int64, 0, len(l))
	for _, pick := range l {
		if pick == nil || pick.ID <= 0 {
			continue
		}
		if _, dup := seen[pick.ID]; dup {
			continue
		}
		seen[pick.ID] = struct{}{}
		ids = append(ids, pick.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a deep copy. Clone of a nil lineup is nil.
func (l Lineup) Clone() Lineup {
	if l == nil {
		return nil
	}
	out := make(Lineup, len(l))
	for slot, pick := range l {
		if pick == nil {
			out[slot] = nil
			continue
		}
		p := *pick
		if pick.Extra != nil {
			p.Extra = make(map[string]json.RawMessage, len(pick.Extra))
			for k, v := range pick.Extra {
				p.Extra[k] = append(json.RawMessage(nil), v...)
			}
		}
		out[slot] = &p
	}
	return out
}
