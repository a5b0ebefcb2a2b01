package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func value(v domain.Value) *domain.Value { return &v }

func TestTreePrinter_Print(t *testing.T) {
	snap := &domain.Snapshot{
		Agent: "cozmo",
		Cycle: 4,
		Root: &domain.SnapshotNode{Name: "input-link", Ref: "I2", Children: []*domain.SnapshotNode{
			{Name: "battery-voltage", Ref: "L1", Value: value(domain.Float(3.9))},
			{Name: "objects", Ref: "S1", Children: []*domain.SnapshotNode{
				{Name: "obj7", Ref: "S2", Children: []*domain.SnapshotNode{
					{Name: "object-id", Ref: "L2", Value: value(domain.Int(7))},
					{Name: "type", Ref: "L3", Value: value(domain.String("led-cube"))},
				}},
			}},
		}},
	}

	var buf bytes.Buffer
	NewTreePrinter(&buf, WithProfile(termenv.Ascii), WithRefs(true)).Print(snap)

	want := `input-link (I2) agent=cozmo cycle=4
├── battery-voltage: 3.9
└── objects (S1)
    └── obj7 (S2)
        ├── object-id: 7
        └── type: led-cube
`
	assert.Equal(t, want, buf.String())
}

func TestTreePrinter_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTreePrinter(&buf, WithProfile(termenv.Ascii)).Print(nil)
	assert.Equal(t, "(empty)\n", buf.String())
}
