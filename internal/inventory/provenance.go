package inventory

import (
	"context"
	"fmt"
	"time"
)

// ProvenanceStep is one residence of a serial: the unit row, its lot and
// branch, and when the unit arrived there.
type ProvenanceStep struct {
	Unit       Unit
	Lot        Lot
	BranchID   int64
	BranchName string
	At         time.Time
}

// ProvenanceCursor walks a unit's chain of custody lazily: backward through
// original-unit links to the root receiving event, then forward through
// counterpart links past the starting unit. Each Next call loads one step.
// The cursor is finite even on corrupt link data (cycles are detected) and
// restartable via Reset.
type ProvenanceCursor struct {
	reader  Reader
	startID int64

	current int64
	rewound bool
	visited map[int64]bool
	done    bool
}

// ProvenanceChain returns a cursor positioned before the root step of the
// unit's history. The unit itself is only loaded on the first Next call.
func (s *Service) ProvenanceChain(unitID int64) *ProvenanceCursor {
	return &ProvenanceCursor{reader: s.repo, startID: unitID}
}

// Reset rewinds the cursor to before the root step.
func (c *ProvenanceCursor) Reset() {
	c.current = 0
	c.rewound = false
	c.visited = nil
	c.done = false
}

// Next returns the next step in receiving order. The boolean is false when
// the chain is exhausted.
func (c *ProvenanceCursor) Next(ctx context.Context) (ProvenanceStep, bool, error) {
	if c.done {
		return ProvenanceStep{}, false, nil
	}
	if !c.rewound {
		root, err := c.findRoot(ctx)
		if err != nil {
			return ProvenanceStep{}, false, err
		}
		c.current = root
		c.rewound = true
		c.visited = map[int64]bool{}
	}
	if c.current == 0 {
		c.done = true
		return ProvenanceStep{}, false, nil
	}
	if c.visited[c.current] {
		// Corrupt forward link loop; stop rather than spin.
		c.done = true
		return ProvenanceStep{}, false, fmt.Errorf("inventory: provenance cycle at unit %d", c.current)
	}
	c.visited[c.current] = true

	unit, err := c.reader.GetUnit(ctx, c.current)
	if err != nil {
		return ProvenanceStep{}, false, err
	}
	lot, err := c.reader.GetLot(ctx, unit.LotID)
	if err != nil {
		return ProvenanceStep{}, false, err
	}
	name, err := c.reader.GetBranchName(ctx, lot.BranchID)
	if err != nil {
		return ProvenanceStep{}, false, err
	}
	step := ProvenanceStep{
		Unit:       unit,
		Lot:        lot,
		BranchID:   lot.BranchID,
		BranchName: name,
		At:         unit.CreatedAt,
	}
	c.current = unit.CounterpartUnitID
	if c.current == 0 {
		c.done = true
	}
	return step, true, nil
}

// findRoot follows original-unit links back to the first receiving event.
func (c *ProvenanceCursor) findRoot(ctx context.Context) (int64, error) {
	seen := map[int64]bool{}
	id := c.startID
	for {
		if seen[id] {
			return 0, fmt.Errorf("inventory: provenance cycle at unit %d", id)
		}
		seen[id] = true
		unit, err := c.reader.GetUnit(ctx, id)
		if err != nil {
			return 0, err
		}
		if unit.OriginalUnitID == 0 {
			return unit.ID, nil
		}
		id = unit.OriginalUnitID
	}
}
