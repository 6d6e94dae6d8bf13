package registers_test

import (
	"errors"
	"futura2mqtt/registers"
	"testing"

	"github.com/epiclabs-io/ut"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeActiveBlocks(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	climate, err := registers.Decode(&registers.ClimateBlock, []uint16{12, 205, 221, 95, 803, 391, 452, 610})
	t.Ok(err)
	power, err := registers.Decode(&registers.PowerBlock, []uint16{35, 410, 0})
	t.Ok(err)
	config, err := registers.Decode(&registers.ConfigBlock, []uint16{120, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 1, 0, 3})
	t.Ok(err)

	s := registers.Snapshot{}
	s.Merge(climate)
	s.Merge(power)
	s.Merge(config)

	expected := registers.Snapshot{
		"fut_temp_ambient":      1.2,
		"fut_temp_fresh":        20.5,
		"fut_temp_indoor":       22.1,
		"fut_temp_waste":        9.5,
		"fut_humi_ambient":      80.3,
		"fut_humi_fresh":        39.1,
		"fut_humi_indoor":       45.2,
		"fut_humi_waste":        61.0,
		"fut_power_consumption": int64(35),
		"fut_heat_recovering":   int64(410),
		"fut_heating_power":     int64(0),
		"func_boost_tm":         int64(2),
		"cfg_bypass_enable":     true,
		"cfg_heating_enable":    false,
		"cfg_cooling_enable":    true,
	}
	if diff := cmp.Diff(expected, s); diff != "" {
		tx.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeShortBlock(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	s, err := registers.Decode(&registers.PowerBlock, []uint16{35, 410})
	t.Assert(errors.Is(err, registers.ErrShortBlock), "expected ErrShortBlock, got %v", err)
	t.Equals(registers.Snapshot(nil), s)

	_, err = registers.Decode(&registers.PowerBlock, []uint16{35, 410, 0, 1})
	t.Assert(errors.Is(err, registers.ErrShortBlock), "expected ErrShortBlock, got %v", err)
}

func TestDecodeChannels(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	words := make([]uint16, registers.AlfaBlock.Quantity)
	for i := 0; i < registers.ALFA_CHANNELS; i++ {
		base := i * 10
		words[base] = uint16(20 + i)   // address
		words[base+3] = uint16(200 + i) // temp
		words[base+5] = uint16(100 * i) // ntc temp
		words[base+9] = 0xFFFF           // padding
	}

	s, err := registers.Decode(&registers.AlfaBlock, words)
	t.Ok(err)
	alfas := s["alfa"].([]registers.Record)
	t.Equals(registers.ALFA_CHANNELS, len(alfas))
	for i, rec := range alfas {
		t.Equals(int64(i), rec[registers.INDEX])
		t.Equals(int64(20+i), rec["address"])
		t.Equals(registers.Tenths(int64(200+i)), rec["temp"])
		t.Equals(registers.Tenths(int64(100*i)), rec["ntc_temp"])
	}
}

func TestDecodeExternalSensors(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	words := make([]uint16, registers.ExtSensorsBlock.Quantity)
	// sensor 2: present, temperature -5.5, humidity 48, co2 650, floor 21.0
	copy(words[20:], []uint16{1, 0, uint16(0x10000 - 55), 48, 650, 210})

	s, err := registers.Decode(&registers.ExtSensorsBlock, words)
	t.Ok(err)
	sensors := s["ext_sensors"].([]registers.Record)
	t.Equals(false, sensors[1]["present"])
	t.Equals(registers.Record{
		registers.INDEX: int64(2),
		"present":       true,
		"error":         int64(0),
		"temperature":   -5.5,
		"humidity":      int64(48),
		"co2":           int64(650),
		"floor_temp":    21.0,
	}, sensors[2])
}

func TestDecodeDeviceBlock(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	words := make([]uint16, registers.DeviceBlock.Quantity)
	words[0] = 39
	words[1], words[2] = 0x0001, 0x86A0 // serial 100000
	words[14] = 2
	words[30] = 235
	words[52] = 3312

	s, err := registers.Decode(&registers.DeviceBlock, words)
	t.Ok(err)
	t.Equals(int64(39), s["fact_device_id"])
	t.Equals(int64(100000), s["fact_serial_number"])
	t.Equals(registers.FUTURA_M, s["sys_options"])
	t.Equals(23.5, s["fut_temp_ambient"])
	t.Equals(3.312, s["sys_battery_voltage"])

	words[14] = 99
	s, err = registers.Decode(&registers.DeviceBlock, words)
	t.Ok(err)
	t.Equals(registers.UNKNOWN_MODEL, s["sys_options"])
}

// Every field and channel record must fit inside its block, and the full map must stay
// within the 125 register limit of a single Modbus read.
func TestMapGeometry(t *testing.T) {
	for _, b := range registers.Blocks(true) {
		if b.Quantity == 0 || b.Quantity > 125 {
			t.Errorf("%s: quantity %d", b.Name, b.Quantity)
		}
		words := make([]uint16, b.Quantity)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("%s: decode panicked: %v", b.Name, r)
				}
			}()
			if _, err := registers.Decode(&b, words); err != nil {
				t.Errorf("%s: %v", b.Name, err)
			}
		}()
	}
}

func TestActiveReadPlan(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	plan := registers.Blocks(false)
	t.Equals(3, len(plan))
	t.Equals(registers.Input, plan[0].Space)
	t.Equals(uint16(30), plan[0].Address)
	t.Equals(uint16(8), plan[0].Quantity)
	t.Equals(registers.Input, plan[1].Space)
	t.Equals(uint16(41), plan[1].Address)
	t.Equals(uint16(3), plan[1].Quantity)
	t.Equals(registers.Holding, plan[2].Space)
	t.Equals(uint16(1), plan[2].Address)
	t.Equals(uint16(16), plan[2].Quantity)

	t.Equals(3+len(registers.Extended), len(registers.Blocks(true)))
}
