package state

// network parameters, shared by every node of a deployment
const (
	AddressSize   = 8
	MaxNeighbor   = 20
	MaxPacketSize = 128

	// MaxStcTree trees are tracked, the first MaxStcSerenaTree of them carry
	// a coloring extension.
	MaxStcTree       = 10
	MaxStcSerenaTree = 3
	// slot of the colored tree this node is root of
	StcSerenaTreeMine = 0
	// slot of the plain tree this node is root of
	StcTreeMine = MaxStcSerenaTree

	DefaultStcTTL = 200

	NbColorMax   = 128
	BitmapSize   = NbColorMax / 8
	MaxPrio1     = 4
	MaxPrio2     = 3
	MaxPrio3     = 1
	ColorNone    = 0xff
	PriorityNone = 0
	// colors published to the host are 1-based, 0 means none
	NoColor = 0

	MaxImplicitColored = 10
	MaxFilterAddress   = 3
	DiagStringSize     = 30

	EnergyClassNb = 3
)

const (
	energyReception = iota
	energyTransmission
)

// EnergyCoef is indexed by [reception|transmission][energy class].
var EnergyCoef = [2][EnergyClassNb]uint16{
	{0, 0, 0},
	{1 << 8, 1 << 4, 1},
}

func ReceptionCoef(class uint8) uint16 {
	return EnergyCoef[energyReception][min(class, EnergyClassNb-1)]
}

func TransmissionCoef(class uint8) uint16 {
	return EnergyCoef[energyTransmission][min(class, EnergyClassNb-1)]
}

// system info bits, piggybacked on every Hello
const (
	SysInfoHasError                  = 1 << 0
	SysInfoHasWarning                = 1 << 1
	SysInfoColoringMode              = 1 << 2
	SysInfoHasMaxColorIndication     = 1 << 3
	SysInfoHasColoringModeIndication = 1 << 4
	SysInfoHasMaxColorResponse       = 1 << 5
	SysInfoHasMaxColorRequest        = 1 << 6
	SysInfoHasColoringModeRequest    = 1 << 7
	SysInfoHasBroadcastOverflow      = 1 << 8
)
