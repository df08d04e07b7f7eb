package axdr

// CaptureObjectDefinition names one column of a profile buffer: the class
// of the referenced object, its logical name, the attribute captured, and
// (for compound attributes such as register arrays) a data index into it.
type CaptureObjectDefinition struct {
	ClassId        uint16
	Obis           Obis
	AttributeIndex int8
	DataIndex      uint16
}

func (c CaptureObjectDefinition) AsData() Data {
	return Data{Tag: TagStructure, Value: []Data{
		{Tag: TagLongUnsigned, Value: c.ClassId},
		{Tag: TagOctetString, Value: c.Obis},
		{Tag: TagInteger, Value: c.AttributeIndex},
		{Tag: TagLongUnsigned, Value: c.DataIndex},
	}}
}

// RangeDescriptor is selective-access selector 1: restrict a GET to rows
// whose capture-time (or other restricting column) falls within
// [FromValue, ToValue], optionally further narrowed to a subset of columns.
type RangeDescriptor struct {
	RestrictingObject CaptureObjectDefinition
	FromValue         Data
	ToValue           Data
	SelectedColumns   []CaptureObjectDefinition
}

const SelectorRange = 1

func (r RangeDescriptor) AsData() Data {
	cols := make([]Data, len(r.SelectedColumns))
	for i, c := range r.SelectedColumns {
		cols[i] = c.AsData()
	}
	return Data{Tag: TagStructure, Value: []Data{
		r.RestrictingObject.AsData(),
		r.FromValue,
		r.ToValue,
		{Tag: TagArray, Value: cols},
	}}
}

// EntryDescriptor is selective-access selector 2: restrict a GET to a
// 1-based inclusive row/column window. ToEntry == 0 means "through the
// last available entry".
type EntryDescriptor struct {
	FromEntry  uint32
	ToEntry    uint32
	FromColumn uint16
	ToColumn   uint16
}

const SelectorEntry = 2

func (e EntryDescriptor) AsData() Data {
	return Data{Tag: TagStructure, Value: []Data{
		{Tag: TagDoubleLongUnsigned, Value: e.FromEntry},
		{Tag: TagDoubleLongUnsigned, Value: e.ToEntry},
		{Tag: TagLongUnsigned, Value: e.FromColumn},
		{Tag: TagLongUnsigned, Value: e.ToColumn},
	}}
}

// ClockBase is the wire value of a Clock object's clock_base attribute.
type ClockBase byte

const (
	ClockBaseNotDefined   ClockBase = 0
	ClockBaseCrystal      ClockBase = 1
	ClockBaseFreqOfSupply ClockBase = 2
	ClockBaseGPS          ClockBase = 3
	ClockBaseRadioControl ClockBase = 4
)

func (c ClockBase) String() string {
	switch c {
	case ClockBaseNotDefined:
		return "not-defined"
	case ClockBaseCrystal:
		return "crystal"
	case ClockBaseFreqOfSupply:
		return "frequency-of-supply"
	case ClockBaseGPS:
		return "gps"
	case ClockBaseRadioControl:
		return "radio-controlled"
	default:
		return "unknown"
	}
}

// SortMethod is the wire value of a ProfileGeneric object's sort_method
// attribute: how the buffer evicts entries once capacity is reached.
type SortMethod byte

const (
	SortMethodFIFO              SortMethod = 1
	SortMethodLIFO              SortMethod = 2
	SortMethodLargest           SortMethod = 3
	SortMethodSmallest          SortMethod = 4
	SortMethodNearestToZero     SortMethod = 5
	SortMethodFarthestFromZero  SortMethod = 6
)

func (s SortMethod) String() string {
	switch s {
	case SortMethodFIFO:
		return "fifo"
	case SortMethodLIFO:
		return "lifo"
	case SortMethodLargest:
		return "largest"
	case SortMethodSmallest:
		return "smallest"
	case SortMethodNearestToZero:
		return "nearest-to-zero"
	case SortMethodFarthestFromZero:
		return "farthest-from-zero"
	default:
		return "unknown"
	}
}
