// Package dismiss closes overlays when the user clicks outside them. A
// single Dispatcher receives every pointer press; each attached Region
// closes itself when a press lands outside its last rendered bounds.
package dismiss

import gosync "sync"

// Point is a terminal cell.
type Point struct {
	X, Y int
}

// Rect is a block of cells. Max is exclusive.
type Rect struct {
	Min, Max Point
}

// RectAt returns the w-by-h rect whose top-left cell is (x, y).
func RectAt(x, y, w, h int) Rect {
	return Rect{Min: Point{X: x, Y: y}, Max: Point{X: x + w, Y: y + h}}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Empty reports whether r covers no cells.
func (r Rect) Empty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

// Union returns the smallest rect covering r and o. An empty operand is
// ignored.
func (r Rect) Union(o Rect) Rect {
	switch {
	case r.Empty():
		return o
	case o.Empty():
		return r
	}
	return Rect{
		Min: Point{X: min(r.Min.X, o.Min.X), Y: min(r.Min.Y, o.Min.Y)},
		Max: Point{X: max(r.Max.X, o.Max.X), Y: max(r.Max.Y, o.Max.Y)},
	}
}

// Dispatcher fans pointer presses out to attached regions.
type Dispatcher struct {
	mu      gosync.Mutex
	nextID  uint64
	regions map[uint64]*Region
}

// NewDispatcher returns a dispatcher with no regions.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{regions: make(map[uint64]*Region)}
}

// Attach registers a new region, open or closed as given.
func (d *Dispatcher) Attach(initialOpen bool) *Region {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	r := &Region{dispatcher: d, id: d.nextID, open: initialOpen}
	d.regions[r.id] = r
	return r
}

// Len returns the number of attached regions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regions)
}

// PointerDown delivers a press at p to every attached region.
func (d *Dispatcher) PointerDown(p Point) {
	d.mu.Lock()
	regions := make([]*Region, 0, len(d.regions))
	for _, r := range d.regions {
		regions = append(regions, r)
	}
	d.mu.Unlock()

	for _, r := range regions {
		r.pointerDown(p)
	}
}

func (d *Dispatcher) detach(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regions, id)
}

// Region is an overlay that closes on outside presses.
type Region struct {
	dispatcher *Dispatcher
	id         uint64

	mu       gosync.Mutex
	open     bool
	bound    bool
	bounds   Rect
	released bool
	onClose  func()
}

// Bind records where the region was last rendered. Presses are ignored
// until the first Bind.
func (r *Region) Bind(bounds Rect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bounds = bounds
	r.bound = true
}

// IsOpen reports whether the region is open.
func (r *Region) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// SetOpen opens or closes the region.
func (r *Region) SetOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = open
}

// Toggle flips the region and returns the new state.
func (r *Region) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = !r.open
	return r.open
}

// OnClose sets a hook run when an outside press closes the region.
func (r *Region) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = fn
}

// Release detaches the region from its dispatcher. Later calls do nothing.
func (r *Region) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	r.dispatcher.detach(r.id)
}

func (r *Region) pointerDown(p Point) {
	r.mu.Lock()
	if r.released || !r.open || !r.bound || r.bounds.Contains(p) {
		r.mu.Unlock()
		return
	}
	r.open = false
	hook := r.onClose
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
}
