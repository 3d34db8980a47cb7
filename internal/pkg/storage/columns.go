package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

// timestamp column names, preferred first.
var timestampColumns = []string{"timestamp", "ts", "time", "datetime", "date"}

var phasePrefixes = [3]string{"a_", "b_", "c_"}

const absent = -1

// columns maps the fields of a device CSV to their index in a row.
type columns struct {
	ts int

	phasePower   [3]int
	phaseVoltage [3]int
	phaseCurrent [3]int
	phasePF      [3]int
	phaseEnergy  [3]int

	power   int
	voltage int
	current int
	pf      int
	energy  int

	totalPower  int
	totalEnergy int
}

func findTimestampColumn(header []string) int {
	index := headerIndex(header)
	for _, name := range timestampColumns {
		if i, ok := index[name]; ok {
			return i
		}
	}
	return absent
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func newColumns(header []string) (columns, error) {
	index := headerIndex(header)
	lookup := func(names ...string) int {
		for _, n := range names {
			if i, ok := index[n]; ok {
				return i
			}
		}
		return absent
	}

	c := columns{ts: findTimestampColumn(header)}
	if c.ts == absent {
		return columns{}, fmt.Errorf("missing timestamp column (tried %s)", strings.Join(timestampColumns, ", "))
	}
	for i, p := range phasePrefixes {
		c.phasePower[i] = lookup(p+"act_power", "act_power_"+p[:1], p+"avg_act_power")
		c.phaseVoltage[i] = lookup(p+"voltage", p+"avg_voltage", p+"u")
		c.phaseCurrent[i] = lookup(p+"current", p+"avg_current")
		c.phasePF[i] = lookup(p+"pf", p+"power_factor")
		c.phaseEnergy[i] = lookup(p+"total_act_energy")
	}
	c.power = lookup("act_power", "apower", "power", "avg_act_power")
	c.voltage = lookup("voltage", "avg_voltage")
	c.current = lookup("current", "avg_current")
	c.pf = lookup("pf", "power_factor")
	c.energy = lookup("aenergy", "energy_wh")
	c.totalPower = lookup("total_act_power")
	c.totalEnergy = lookup("total_act_energy")
	return c, nil
}

func (c columns) threePhase() bool {
	for i := range phasePrefixes {
		if c.phasePower[i] != absent || c.phaseVoltage[i] != absent || c.phaseCurrent[i] != absent {
			return true
		}
	}
	return false
}

// sample converts one record. Empty numeric cells read as zero (or as a
// missing counter); anything unparsable rejects the whole row.
func (c columns) sample(deviceID string, record []string, loc *time.Location) (model.Sample, error) {
	if c.ts >= len(record) {
		return model.Sample{}, fmt.Errorf("row has %d fields, timestamp is field %d", len(record), c.ts+1)
	}
	at, err := NormalizeTimestamp(record[c.ts], loc)
	if err != nil {
		return model.Sample{}, err
	}
	r := rowReader{record: record}

	s := model.Sample{DeviceID: deviceID, At: at}
	if c.threePhase() {
		s.Phases = make([]model.Phase, len(phasePrefixes))
		for i := range phasePrefixes {
			s.Phases[i] = model.Phase{
				PowerW:      r.float(c.phasePower[i]),
				VoltageV:    r.float(c.phaseVoltage[i]),
				CurrentA:    r.float(c.phaseCurrent[i]),
				PowerFactor: r.float(c.phasePF[i]),
			}
		}
	} else if c.power != absent || c.voltage != absent || c.current != absent {
		s.Phases = []model.Phase{{
			PowerW:      r.float(c.power),
			VoltageV:    r.float(c.voltage),
			CurrentA:    r.float(c.current),
			PowerFactor: r.float(c.pf),
		}}
	}

	if c.totalPower != absent {
		s.TotalPowerW = r.float(c.totalPower)
	} else {
		for _, p := range s.Phases {
			s.TotalPowerW += p.PowerW
		}
	}
	s.EnergyWh = c.counter(&r)

	if r.err != nil {
		return model.Sample{}, r.err
	}
	return s, nil
}

func (c columns) counter(r *rowReader) *float64 {
	if v, ok := r.optional(c.totalEnergy); ok {
		return &v
	}
	var sum float64
	found := false
	for i := range phasePrefixes {
		v, ok := r.optional(c.phaseEnergy[i])
		if !ok {
			continue
		}
		sum += v
		found = true
	}
	if found {
		return &sum
	}
	if v, ok := r.optional(c.energy); ok {
		return &v
	}
	return nil
}

// rowReader parses numeric cells and remembers the first failure.
type rowReader struct {
	record []string
	err    error
}

func (r *rowReader) optional(i int) (float64, bool) {
	if i == absent || i >= len(r.record) {
		return 0, false
	}
	raw := strings.TrimSpace(r.record[i])
	if raw == "" || raw == "--" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("field %d: %w", i+1, err)
		}
		return 0, false
	}
	return v, true
}

func (r *rowReader) float(i int) float64 {
	v, _ := r.optional(i)
	return v
}
