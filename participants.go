package pairview

import (
	"container/list"
	"image/color"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultPalette is the cursor colour cycle for remote participants.
var DefaultPalette = []color.RGBA{
	{R: 0xE6, G: 0x4A, B: 0x19, A: 0xFF},
	{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF},
	{R: 0x43, G: 0xA0, B: 0x47, A: 0xFF},
	{R: 0x8E, G: 0x24, B: 0xAA, A: 0xFF},
	{R: 0xFB, G: 0x8C, B: 0x00, A: 0xFF},
	{R: 0x00, G: 0xAC, B: 0xC1, A: 0xFF},
	{R: 0xD8, G: 0x1B, B: 0x60, A: 0xFF},
	{R: 0x7C, G: 0xB3, B: 0x42, A: 0xFF},
}

// DefaultMaxParticipants bounds the colour registry.
const DefaultMaxParticipants = 64

// ParticipantColors assigns each remote participant a stable colour. Each
// session owns one registry. Ids come from the stream, so the registry
// holds at most limit entries and evicts the least recently seen id.
type ParticipantColors struct {
	mu      sync.Mutex
	palette []color.RGBA
	limit   int
	// front = most recently seen
	order    *list.List
	assigned map[string]*list.Element
	next     int
}

type participantEntry struct {
	id    string
	color color.RGBA
}

// NewParticipantColors creates a registry cycling through palette. An
// empty palette uses DefaultPalette and a non-positive limit uses
// DefaultMaxParticipants.
func NewParticipantColors(palette []color.RGBA, limit int) *ParticipantColors {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if limit <= 0 {
		limit = DefaultMaxParticipants
	}
	return &ParticipantColors{
		palette:  append([]color.RGBA(nil), palette...),
		limit:    limit,
		order:    list.New(),
		assigned: make(map[string]*list.Element),
	}
}

// Color returns the participant's colour, assigning the next palette entry
// on first sight.
func (p *ParticipantColors) Color(participantID string) color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elem, ok := p.assigned[participantID]; ok {
		p.order.MoveToFront(elem)
		return elem.Value.(*participantEntry).color
	}

	for p.order.Len() >= p.limit {
		back := p.order.Back()
		evicted := p.order.Remove(back).(*participantEntry)
		delete(p.assigned, evicted.id)
		logrus.WithFields(logrus.Fields{
			"function":       "ParticipantColors.Color",
			"participant_id": evicted.id,
			"limit":          p.limit,
		}).Debug("Evicting least recently seen participant")
	}

	c := p.palette[p.next%len(p.palette)]
	p.next++
	p.assigned[participantID] = p.order.PushFront(&participantEntry{id: participantID, color: c})
	return c
}

// Forget drops a participant's assignment.
func (p *ParticipantColors) Forget(participantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if elem, ok := p.assigned[participantID]; ok {
		p.order.Remove(elem)
		delete(p.assigned, participantID)
	}
}

// Len returns the number of assigned participants.
func (p *ParticipantColors) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.assigned)
}

// Reset clears every assignment and restarts the cycle.
func (p *ParticipantColors) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order.Init()
	p.assigned = make(map[string]*list.Element)
	p.next = 0
}
