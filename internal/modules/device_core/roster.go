package devicecore

import (
	"fmt"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// Roster is the local view of connected devices. It changes only through
// ApplySnapshot and ApplyDelta; nothing is inferred locally.
type Roster struct {
	selfID  string
	devices []ps.Device
}

// SetSelf records this device's hub-assigned id.
func (r *Roster) SetSelf(id string) {
	r.selfID = id
}

// SelfID returns this device's id, empty before the first welcome.
func (r *Roster) SelfID() string {
	return r.selfID
}

// IsSelf reports whether id is this device.
func (r *Roster) IsSelf(id string) bool {
	return id != "" && id == r.selfID
}

// ApplySnapshot replaces the roster. Duplicate ids collapse to the last
// record.
func (r *Roster) ApplySnapshot(devices []ps.Device) {
	out := make([]ps.Device, 0, len(devices))
	seen := map[string]int{}
	for _, device := range devices {
		if idx, ok := seen[device.ID]; ok {
			out[idx] = device
			continue
		}
		seen[device.ID] = len(out)
		out = append(out, device)
	}
	r.devices = out
}

// ApplyDelta applies a single change. The device list accompanying the
// delta is only consulted for the record of a newly connected device.
func (r *Roster) ApplyDelta(change ps.DeviceChange, devices []ps.Device) error {
	switch change.Type {
	case ps.ChangeConnected:
		record, ok := findDevice(devices, change.DeviceID)
		if !ok {
			return fmt.Errorf("%s %s: %w", change.Type, change.DeviceID, ErrUnknownDevice)
		}
		if idx := r.index(change.DeviceID); idx >= 0 {
			r.devices[idx] = record
			return nil
		}
		r.devices = append(r.devices, record)
		return nil
	case ps.ChangeDisconnected:
		idx := r.index(change.DeviceID)
		if idx < 0 {
			return fmt.Errorf("%s %s: %w", change.Type, change.DeviceID, ErrUnknownDevice)
		}
		r.devices = append(r.devices[:idx], r.devices[idx+1:]...)
		return nil
	case ps.ChangeBecameAudioDevice:
		idx := r.index(change.DeviceID)
		if idx < 0 {
			return fmt.Errorf("%s %s: %w", change.Type, change.DeviceID, ErrUnknownDevice)
		}
		for i := range r.devices {
			r.devices[i].IsAudioDevice = i == idx
		}
		return nil
	case ps.ChangeStoppedAudioDevice:
		idx := r.index(change.DeviceID)
		if idx < 0 {
			return fmt.Errorf("%s %s: %w", change.Type, change.DeviceID, ErrUnknownDevice)
		}
		r.devices[idx].IsAudioDevice = false
		return nil
	default:
		return fmt.Errorf("unknown change type %q", change.Type)
	}
}

// CurrentAudioDevice returns the device holding the audio role.
func (r *Roster) CurrentAudioDevice() (ps.Device, bool) {
	for _, device := range r.devices {
		if device.IsAudioDevice {
			return device, true
		}
	}
	return ps.Device{}, false
}

// Lookup returns a device by id.
func (r *Roster) Lookup(id string) (ps.Device, bool) {
	if idx := r.index(id); idx >= 0 {
		return r.devices[idx], true
	}
	return ps.Device{}, false
}

// Devices returns a copy of the roster in hub order.
func (r *Roster) Devices() []ps.Device {
	out := make([]ps.Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Clear empties the roster but keeps the self id.
func (r *Roster) Clear() {
	r.devices = nil
}

func (r *Roster) index(id string) int {
	for i, device := range r.devices {
		if device.ID == id {
			return i
		}
	}
	return -1
}

func findDevice(devices []ps.Device, id string) (ps.Device, bool) {
	for _, device := range devices {
		if device.ID == id {
			return device, true
		}
	}
	return ps.Device{}, false
}
