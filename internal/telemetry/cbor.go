package telemetry

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/lego-riskieren/lump-driver/internal/lump"
)

// wireSample and wireModeDescriptor are the CBOR-friendly projections
// of lump's domain types, marshaling a small message struct with
// cbor.Marshal before handing it to the transport.
type wireSample struct {
	Mode      uint8  `cbor:"mode"`
	Payload   []byte `cbor:"payload"`
	Timestamp int64  `cbor:"ts_unix_ns"`
}

type wireRange struct {
	Min float32 `cbor:"min"`
	Max float32 `cbor:"max"`
}

type wireModeDescriptor struct {
	Name      string    `cbor:"name"`
	NumValues int       `cbor:"num_values"`
	DataType  uint8     `cbor:"data_type"`
	Writable  bool      `cbor:"writable"`
	Symbol    string    `cbor:"symbol"`
	Figures   int       `cbor:"figures"`
	Decimals  int       `cbor:"decimals"`
	Raw       wireRange `cbor:"raw"`
	Percent   wireRange `cbor:"percent"`
	SI        wireRange `cbor:"si"`
}

type wireInfo struct {
	NumModes    int                   `cbor:"num_modes"`
	CurrentMode uint8                 `cbor:"current_mode"`
	TypeID      uint16                `cbor:"type_id"`
	DefaultMode uint8                 `cbor:"default_mode"`
	Modes       []wireModeDescriptor  `cbor:"modes"`
}

// EncodeSample CBOR-encodes a sample for Redis storage.
func EncodeSample(s lump.Sample) ([]byte, error) {
	return cbor.Marshal(wireSample{
		Mode:      s.Mode,
		Payload:   s.Payload,
		Timestamp: s.Timestamp.UnixNano(),
	})
}

// EncodeInfo CBOR-encodes a device descriptor snapshot.
func EncodeInfo(info lump.Info) ([]byte, error) {
	w := wireInfo{
		NumModes:    info.NumModes,
		CurrentMode: info.CurrentMode,
	}
	if info.Descriptor != nil {
		w.TypeID = uint16(info.Descriptor.TypeID)
		w.DefaultMode = info.Descriptor.DefaultMode
		w.Modes = make([]wireModeDescriptor, len(info.Descriptor.Modes))
		for i, m := range info.Descriptor.Modes {
			w.Modes[i] = wireModeDescriptor{
				Name:      m.Name,
				NumValues: m.NumValues,
				DataType:  uint8(m.DataType),
				Writable:  m.Writable,
				Symbol:    m.Symbol,
				Figures:   m.Figures,
				Decimals:  m.Decimals,
				Raw:       wireRange(m.Raw),
				Percent:   wireRange(m.Percent),
				SI:        wireRange(m.SI),
			}
		}
	}
	return cbor.Marshal(w)
}
