package core

import (
	"time"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// Transport names.
const (
	TransportMQTT = "mqtt"
	TransportWS   = "ws"
)

// Config is runtime configuration for the CLI.
type Config struct {
	Transport         string
	Broker            string
	WSURL             string
	TopicBase         string
	User              string
	DeviceName        string
	DeviceType        ps.DeviceType
	DeviceKey         string
	Username          string
	Password          string
	TLSCA             string
	TLSCert           string
	TLSKey            string
	Timeout           time.Duration
	BroadcastInterval time.Duration
	HandoffTimeout    time.Duration
	Settle            time.Duration
	TrackDuration     float64
}
