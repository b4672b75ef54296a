package runtime

type CollectStatus int8

const (
	Stopped CollectStatus = iota
	Collecting
	CollectingError
	Unconnected
	EmptyVariable
)

var CollectStatusToString = map[CollectStatus]string{
	Stopped:         "stopped",
	Collecting:      "collecting",
	CollectingError: "collectingError",
	Unconnected:     "unconnected",
	EmptyVariable:   "emptyVariable",
}

var StringToCollectStatus = map[string]CollectStatus{
	"stopped":         Stopped,
	"collecting":      Collecting,
	"collectingError": CollectingError,
	"unconnected":     Unconnected,
	"emptyVariable":   EmptyVariable,
}

type DeviceStatusCh int8

const (
	Start DeviceStatusCh = iota
	Stop
	Restart
)

var StringToDeviceStatusCh = map[string]DeviceStatusCh{
	"start":   Start,
	"stop":    Stop,
	"restart": Restart,
}

type ConnectionStatus string

const (
	ConnectionStatusUnknown      ConnectionStatus = "unknown"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)
