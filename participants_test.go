package pairview

import (
	"image/color"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipantColors_StableAssignment(t *testing.T) {
	p := NewParticipantColors(nil, 0)

	alice := p.Color("alice")
	bob := p.Color("bob")
	assert.Equal(t, DefaultPalette[0], alice)
	assert.Equal(t, DefaultPalette[1], bob)
	assert.Equal(t, alice, p.Color("alice"))
	assert.Equal(t, 2, p.Len())
}

func TestParticipantColors_CyclesPalette(t *testing.T) {
	red := color.RGBA{R: 0xFF, A: 0xFF}
	blue := color.RGBA{B: 0xFF, A: 0xFF}
	p := NewParticipantColors([]color.RGBA{red, blue}, 0)

	assert.Equal(t, red, p.Color("a"))
	assert.Equal(t, blue, p.Color("b"))
	assert.Equal(t, red, p.Color("c"))
}

func TestParticipantColors_ForgetAndReset(t *testing.T) {
	p := NewParticipantColors(nil, 0)
	p.Color("alice")
	p.Color("bob")

	p.Forget("alice")
	assert.Equal(t, 1, p.Len())

	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, DefaultPalette[0], p.Color("carol"))
}

func TestParticipantColors_RegistriesAreIndependent(t *testing.T) {
	a := NewParticipantColors(nil, 0)
	b := NewParticipantColors(nil, 0)

	a.Color("x")
	assert.Equal(t, DefaultPalette[0], b.Color("y"))
}

func TestParticipantColors_EvictsLeastRecentlySeen(t *testing.T) {
	p := NewParticipantColors(nil, 2)

	p.Color("alice")
	p.Color("bob")
	p.Color("alice")
	p.Color("carol")

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, DefaultPalette[0], p.Color("alice"))
	assert.Equal(t, DefaultPalette[2], p.Color("carol"))
	assert.Equal(t, DefaultPalette[3], p.Color("bob"), "evicted id gets a fresh colour")
	assert.Equal(t, 2, p.Len())
}

func TestParticipantColors_BoundedUnderUniqueIDs(t *testing.T) {
	p := NewParticipantColors(nil, 0)
	for i := 0; i < 10*DefaultMaxParticipants; i++ {
		p.Color(strings.Repeat("x", 200) + strconv.Itoa(i))
	}
	assert.Equal(t, DefaultMaxParticipants, p.Len())

	p.Forget("missing")
	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, DefaultPalette[0], p.Color("alice"))
}
