package lob

import (
	"fmt"

	"github.com/0x5487/lob/structure"
)

// Pools holds the fixed-capacity order and level storage shared by every
// book of one registry. Pools never grow; running out is fatal.
// Pools is owned by a single goroutine.
type Pools struct {
	orders *structure.Arena[order]
	levels *structure.Arena[level]
}

// NewPools pre-allocates maxOrders order slots and maxLevels level slots.
func NewPools(maxOrders, maxLevels int32) *Pools {
	return &Pools{
		orders: structure.NewArena[order](maxOrders),
		levels: structure.NewArena[level](maxLevels),
	}
}

// PoolUsage reports slot usage of a Pools.
type PoolUsage struct {
	Orders        int `json:"orders"`
	OrderCapacity int `json:"order_capacity"`
	OrderPeak     int `json:"order_peak"`
	Levels        int `json:"levels"`
	LevelCapacity int `json:"level_capacity"`
	LevelPeak     int `json:"level_peak"`
}

func (p *Pools) Usage() PoolUsage {
	return PoolUsage{
		Orders:        p.orders.Len(),
		OrderCapacity: p.orders.Cap(),
		OrderPeak:     p.orders.Peak(),
		Levels:        p.levels.Len(),
		LevelCapacity: p.levels.Cap(),
		LevelPeak:     p.levels.Peak(),
	}
}

func (p *Pools) allocOrder() (int32, error) {
	h, err := p.orders.Alloc()
	if err != nil {
		return nullIndex, fmt.Errorf("%w: %d order slots in use", ErrPoolExhausted, p.orders.Len())
	}
	return h, nil
}

func (p *Pools) allocLevel() (int32, error) {
	h, err := p.levels.Alloc()
	if err != nil {
		return nullIndex, fmt.Errorf("%w: %d level slots in use", ErrPoolExhausted, p.levels.Len())
	}
	return h, nil
}

func (p *Pools) order(h int32) *order { return p.orders.Get(h) }
func (p *Pools) level(h int32) *level { return p.levels.Get(h) }

func (p *Pools) freeOrder(h int32) { p.orders.Free(h) }
func (p *Pools) freeLevel(h int32) { p.levels.Free(h) }
