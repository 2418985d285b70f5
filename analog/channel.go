package analog

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	NumChannels = 8
	NumChips    = 2
	NumPwm      = 4
)

// Channel is a logical channel of the module, 0 to 7. Values outside that
// range are rejected by NewChannel.
type Channel uint8

// NewChannel validates a channel index received from outside.
func NewChannel(i int) (Channel, error) {
	if i < 0 || i >= NumChannels {
		return 0, errors.Wrapf(ErrInvalidChannel, "channel %d", i)
	}
	return Channel(i), nil
}

// Channels lists every channel in index order.
func Channels() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Chip identifies one of the two front-end chips.
type Chip uint8

// NewChip validates a chip index received from outside.
func NewChip(i int) (Chip, error) {
	if i < 0 || i >= NumChips {
		return 0, errors.Wrapf(ErrInvalidChannel, "chip %d", i)
	}
	return Chip(i), nil
}

// Selector addresses a register either through a channel (0 to 7, the
// channel's displacement is added to the base address) or through a
// whole-chip token for registers that exist once per chip.
type Selector uint8

const (
	WholeChip0 Selector = 101
	WholeChip1 Selector = 102
)

// channelMap is the board wiring: which chip slot each channel lands on.
var channelMap = [NumChannels]struct {
	chip Chip
	disp uint8
}{
	{0, 1},
	{0, 0},
	{1, 0},
	{1, 1},
	{1, 2},
	{1, 3},
	{0, 2},
	{0, 3},
}

func (c Channel) Chip() Chip { return channelMap[c].chip }
func (c Channel) Displacement() uint8 { return channelMap[c].disp }
func (c Channel) Selector() Selector { return Selector(c) }
func (c Channel) WholeChip() Selector { return c.Chip().Selector() }
func (c Channel) String() string { return fmt.Sprintf("ch%d", uint8(c)) }
func (c Chip) Selector() Selector { return WholeChip0 + Selector(c) }

// IsWholeChip reports whether s is a whole-chip token.
func (s Selector) IsWholeChip() bool {
	return s == WholeChip0 || s == WholeChip1
}

// Chip resolves the chip s addresses. It panics on a selector that is
// neither a channel nor a whole-chip token.
func (s Selector) Chip() Chip {
	switch {
	case s.IsWholeChip():
		return Chip(s - WholeChip0)
	case s < NumChannels:
		return Channel(s).Chip()
	}
	panic(fmt.Sprintf("analog: invalid register selector %d", s))
}

// Displacement is the slot offset added to per-channel base addresses,
// zero for whole-chip tokens.
func (s Selector) Displacement() uint8 {
	switch {
	case s.IsWholeChip():
		return 0
	case s < NumChannels:
		return Channel(s).Displacement()
	}
	panic(fmt.Sprintf("analog: invalid register selector %d", s))
}

// channelAt returns the channel wired to a chip slot.
func channelAt(chip Chip, disp uint8) Channel {
	for i, m := range channelMap {
		if m.chip == chip && m.disp == disp {
			return Channel(i)
		}
	}
	panic(fmt.Sprintf("analog: no channel on chip %d slot %d", chip, disp))
}

// channelsOf lists the channels of a chip in slot order.
func channelsOf(chip Chip) [4]Channel {
	var out [4]Channel
	for d := range out {
		out[d] = channelAt(chip, uint8(d))
	}
	return out
}
