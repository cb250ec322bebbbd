package wayland

// Interface names as advertised by the registry.
const (
	ifaceNameSeat    = "wl_seat"
	ifaceNameManager = "zwlr_data_control_manager_v1"
)

// Highest versions this client speaks. Manager v2 adds primary selection.
const (
	maxSeatVersion    = 2
	maxManagerVersion = 2
)

// iface tags the objects in the connection's object table.
type iface uint8

const (
	ifaceUnknown iface = iota
	ifaceDisplay
	ifaceRegistry
	ifaceCallback
	ifaceSeat
	ifaceManager
	ifaceDevice
	ifaceSource
	ifaceOffer
)

const displayID uint32 = 1

// serverIDBase is the first object id allocated by the compositor.
const serverIDBase uint32 = 0xff000000

// Requests.
const (
	opDisplaySync        uint16 = 0
	opDisplayGetRegistry uint16 = 1

	opRegistryBind uint16 = 0

	opManagerCreateDataSource uint16 = 0
	opManagerGetDataDevice    uint16 = 1
	opManagerDestroy          uint16 = 2

	opDeviceSetSelection        uint16 = 0
	opDeviceDestroy             uint16 = 1
	opDeviceSetPrimarySelection uint16 = 2

	opSourceOffer   uint16 = 0
	opSourceDestroy uint16 = 1

	opOfferReceive uint16 = 0
	opOfferDestroy uint16 = 1
)

// Events.
const (
	evDisplayError    uint16 = 0
	evDisplayDeleteID uint16 = 1

	evRegistryGlobal       uint16 = 0
	evRegistryGlobalRemove uint16 = 1

	evCallbackDone uint16 = 0

	evDeviceDataOffer        uint16 = 0
	evDeviceSelection        uint16 = 1
	evDeviceFinished         uint16 = 2
	evDevicePrimarySelection uint16 = 3

	evSourceSend      uint16 = 0
	evSourceCancelled uint16 = 1

	evOfferOffer uint16 = 0
)

// clientFDArg reports which events carry a file descriptor.
func clientFDArg(i iface, opcode uint16) bool {
	return i == ifaceSource && opcode == evSourceSend
}

// textMIMEs is the read preference order; the same set is offered on write.
var textMIMEs = []string{
	"text/plain;charset=utf-8",
	"UTF8_STRING",
	"text/plain",
	"TEXT",
	"STRING",
}

// markerPrefix identifies data sources created by a bridge; the session id
// follows so two bridges on one seat still see each other.
const markerPrefix = "application/x-clipbridge;session="

func pickMIME(offered []string) string {
	for _, want := range textMIMEs {
		for _, m := range offered {
			if m == want {
				return m
			}
		}
	}
	return ""
}
