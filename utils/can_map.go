package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SignalDef describes one physical signal packed into a CAN frame.
// Only little-endian packing is supported.
type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
}

// FrameDef describes a CAN frame and its signal layout.
type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string // "tx" or "rx" from the controller's point of view
	CycleMS   int
	Signals   []SignalDef
}

// CANMap indexes the frame catalog by id and by name.
type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// canMapColumns is the required CSV header of a frame catalog, one row per
// signal.
var canMapColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit",
}

// LoadCANMap reads the frame catalog CSV at csvPath.
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCANMap(f)
}

// ParseCANMap reads a frame catalog from r.
func ParseCANMap(r io.Reader) (*CANMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range canMapColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column %q", k)
		}
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		col := func(name string) string { return strings.TrimSpace(rec[idx[name]]) }

		frameID, err := parseHexOrDecUint32(col("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame_id %q: %w", line, col("frame_id"), err)
		}
		frameName := col("frame_name")
		dlc, err := strconv.Atoi(col("dlc"))
		if err != nil || dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("line %d: frame %s has invalid dlc %q", line, frameName, col("dlc"))
		}
		cycleMS, err := strconv.Atoi(col("cycle_ms"))
		if err != nil {
			return nil, fmt.Errorf("line %d: frame %s has invalid cycle_ms %q", line, frameName, col("cycle_ms"))
		}

		sig := SignalDef{
			Name:      col("signal_name"),
			StartBit:  atoiLax(col("start_bit")),
			BitLength: atoiLax(col("bit_length")),
			Signed:    parseBool(col("signed")),
			Factor:    atofLax(col("factor")),
			Offset:    atofLax(col("offset")),
			Min:       atofLax(col("min")),
			Max:       atofLax(col("max")),
			Default:   atofLax(col("default")),
			Unit:      col("unit"),
		}
		if e := col("endianness"); e != "" && e != "little" {
			return nil, fmt.Errorf("line %d: frame %s signal %s: unsupported endianness %q", line, frameName, sig.Name, e)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 || sig.StartBit < 0 || sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("line %d: frame %s signal %s: bit range [%d, %d) does not fit dlc %d",
				line, frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength, dlc)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("line %d: frame %s signal %s: factor must be non-zero", line, frameName, sig.Name)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: col("direction"),
				CycleMS:   cycleMS,
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}
		if fd.DLC != dlc {
			return nil, fmt.Errorf("line %d: frame %s (0x%X) has inconsistent dlc (%d vs %d)", line, frameName, frameID, fd.DLC, dlc)
		}
		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}
	return m, nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func atoiLax(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func atofLax(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
