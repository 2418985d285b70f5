package analog

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"analogio/ad74412r"
)

// DefaultAlertMask watches every alert except the reset flag, which is
// always set after Begin.
const DefaultAlertMask uint16 = 0xFFFF &^ ad74412r.AlertResetOccurred

// ConfigureAlertMask sets which alerts of chip are watched and writes it
// at once. A set bit watches the alert; the chip's ALERT_MASK uses the
// opposite sense.
func (d *Driver) ConfigureAlertMask(chip Chip, mask uint16) error {
	if err := d.writeReg(ad74412r.RegAlertMask, ^mask, chip.Selector()); err != nil {
		return err
	}
	d.chips[chip].alertMask = mask
	return nil
}

// AlertMask returns the watched alerts of chip.
func (d *Driver) AlertMask(chip Chip) uint16 { return d.chips[chip].alertMask }

// UpdateAlertStatus reads ALERT_STATUS of chip, keeps the watched bits and
// clears only those on the chip. Unwatched alerts stay latched.
func (d *Driver) UpdateAlertStatus(chip Chip) error {
	cs := &d.chips[chip]
	raw, err := d.readReg(ad74412r.RegAlertStatus, chip.Selector())
	if err != nil {
		return err
	}

	status := raw & cs.alertMask
	if status != 0 {
		if err := d.writeReg(ad74412r.RegAlertStatus, status, chip.Selector()); err != nil {
			return err
		}
		d.log.Warn("front-end alert", zap.Uint8("chip", uint8(chip)), zap.Uint16("status", status))
	}
	cs.alertStatus = status

	for _, ch := range channelsOf(chip) {
		d.ch[ch].fault = status&(1<<(ad74412r.AlertViErrShift+ch.Displacement())) != 0
	}
	return nil
}

// AlertStatus returns the watched alerts seen at the last update.
func (d *Driver) AlertStatus(chip Chip) uint16 { return d.chips[chip].alertStatus }

// ChannelFault reports the voltage/current error flag of ch at the last
// alert update.
func (d *Driver) ChannelFault(ch Channel) bool { return d.ch[ch].fault }

// LiveStatus returns LIVE_STATUS of chip as last read.
func (d *Driver) LiveStatus(chip Chip) uint16 { return d.chips[chip].liveStatus }

// UpdateLiveStatus reads LIVE_STATUS and the comparator outputs of both
// chips.
func (d *Driver) UpdateLiveStatus() error {
	var errs error
	for chip := Chip(0); chip < NumChips; chip++ {
		live, err := d.readDirect(chip, ad74412r.RegLiveStatus)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		d.chips[chip].liveStatus = live
	}
	return multierr.Append(errs, d.UpdateDinReadings())
}

// DigitalInputs returns the comparator levels of the digital input
// channels as a channel bitmask.
func (d *Driver) DigitalInputs() uint8 {
	var mask uint8
	for _, ch := range Channels() {
		if d.FunctionOf(ch).IsDigitalInput() && d.ch[ch].dinLevel {
			mask |= 1 << ch
		}
	}
	return mask
}
