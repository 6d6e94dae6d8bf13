package registers

// Input registers
const REG_TEMP_HUMI = 30
const REG_POWER = 41
const REG_INPUT_DEVICE = 0
const REG_INPUT_STATS = 60
const REG_INPUT_UI = 100
const REG_INPUT_ALFA = 160

// Holding registers
const REG_BOOST_TM = 1
const REG_TEMP_SET = 10
const REG_HUMI_SET = 11
const REG_BYPASS_ENABLE = 14
const REG_HEATING_ENABLE = 15
const REG_COOLING_ENABLE = 16
const REG_COMFORT_ENABLE = 17
const REG_HOLDING_CONFIG = REG_BOOST_TM
const REG_HOLDING_GLOBAL = 0
const REG_HOLDING_CORR = 100
const REG_EXT_SENSORS = 0x12C
const REG_EXT_BUTTONS = 0x190

const BOOST_MAX_MINUTES = 10

// indoor temperature set point limits, °C
const TEMP_SET_MIN = 10
const TEMP_SET_MAX = 30

const UI_CHANNELS = 3
const SENSOR_CHANNELS = 8
const ALFA_CHANNELS = 8
const EXT_SENSOR_CHANNELS = 8
const EXT_BUTTON_CHANNELS = 8

func tenths(key string, offset uint16) Field {
	return Field{Key: key, Offset: offset, Kind: KindU16, Scale: 0.1, Decimals: 1}
}

func signedTenths(key string, offset uint16) Field {
	return Field{Key: key, Offset: offset, Kind: KindI16, Scale: 0.1, Decimals: 1}
}

func raw(key string, offset uint16) Field {
	return Field{Key: key, Offset: offset, Kind: KindU16}
}

func u32(key string, offset uint16) Field {
	return Field{Key: key, Offset: offset, Kind: KindU32}
}

func flag(key string, offset uint16) Field {
	return Field{Key: key, Offset: offset, Kind: KindFlag}
}

func writable(f Field, address uint16, min, max float64) Field {
	f.Write = &WriteRule{Address: address, Min: min, Max: max}
	return f
}

var climateFields = []Field{
	tenths("fut_temp_ambient", 0),
	tenths("fut_temp_fresh", 1),
	tenths("fut_temp_indoor", 2),
	tenths("fut_temp_waste", 3),
	tenths("fut_humi_ambient", 4),
	tenths("fut_humi_fresh", 5),
	tenths("fut_humi_indoor", 6),
	tenths("fut_humi_waste", 7),
}

var ClimateBlock = Block{
	Name:     "climate",
	Space:    Input,
	Address:  REG_TEMP_HUMI,
	Quantity: 8,
	Fields:   climateFields,
}

var PowerBlock = Block{
	Name:     "power",
	Space:    Input,
	Address:  REG_POWER,
	Quantity: 3,
	Fields: []Field{
		raw("fut_power_consumption", 0),
		raw("fut_heat_recovering", 1),
		raw("fut_heating_power", 2),
	},
}

var boostField = writable(Field{Key: "func_boost_tm", Kind: KindMinutes}, REG_BOOST_TM, 0, BOOST_MAX_MINUTES)
var bypassField = writable(flag("cfg_bypass_enable", 0), REG_BYPASS_ENABLE, 0, 1)
var heatingField = writable(flag("cfg_heating_enable", 0), REG_HEATING_ENABLE, 0, 1)
var coolingField = writable(flag("cfg_cooling_enable", 0), REG_COOLING_ENABLE, 0, 1)

// at returns a copy of f moved to offset
func at(f Field, offset uint16) Field {
	f.Offset = offset
	return f
}

var ConfigBlock = Block{
	Name:     "config",
	Space:    Holding,
	Address:  REG_HOLDING_CONFIG,
	Quantity: 16,
	Fields: []Field{
		at(boostField, REG_BOOST_TM-REG_HOLDING_CONFIG),
		at(bypassField, REG_BYPASS_ENABLE-REG_HOLDING_CONFIG),
		at(heatingField, REG_HEATING_ENABLE-REG_HOLDING_CONFIG),
		at(coolingField, REG_COOLING_ENABLE-REG_HOLDING_CONFIG),
	},
}

// Active is the set of blocks read on every poll cycle, in read order
var Active = []Block{ClimateBlock, PowerBlock, ConfigBlock}

var DeviceBlock = Block{
	Name:     "device",
	Space:    Input,
	Address:  REG_INPUT_DEVICE,
	Quantity: 53,
	Fields: append([]Field{
		raw("fact_device_id", 0),
		u32("fact_serial_number", 1),
		{Key: "fact_ethernet_mac", Offset: 3, Kind: KindMAC},
		u32("fact_hw_revision", 6),
		u32("firm_revision", 8),
		u32("sys_build_number", 10),
		u32("sys_regmap_version", 12),
		{Key: "sys_options", Offset: 14, Kind: KindModel},
		raw("fut_config", 15),
		u32("fut_mode", 16),
		u32("fut_error", 18),
		u32("fut_warning", 20),
		signedTenths("fut_t_out", 38),
		raw("fut_filter_wear_level", 40),
		raw("fut_power_consumption", 41),
		raw("fut_heat_recovering", 42),
		raw("fut_heating_power", 43),
		raw("fut_air_flow", 44),
		raw("fut_fan_pwm_supply", 45),
		raw("fut_fan_pwm_exhaust", 46),
		raw("fut_fan_rpm_supply", 47),
		raw("fut_fan_rpm_exhaust", 48),
		raw("fut_uint1_voltage", 49),
		raw("fut_uint2_voltage", 50),
		raw("fut_dig_inputs", 51),
		{Key: "sys_battery_voltage", Offset: 52, Kind: KindU16, Scale: 0.001, Decimals: 3},
	}, shift(climateFields, REG_TEMP_HUMI-REG_INPUT_DEVICE)...),
}

var StatsBlock = Block{
	Name:     "stats",
	Space:    Input,
	Address:  REG_INPUT_STATS,
	Quantity: 21,
	Fields: []Field{
		u32("mbdev_stat_reads", 0),
		u32("mbdev_stat_writes", 2),
		u32("mbdev_stat_fails", 4),
		raw("mbdev_connected_mk_ui", 6),
		u32("mbdev_connected_mk_sens", 7),
		flag("mbdev_connected_coolbreeze", 9),
		u32("mbdev_connected_valve_supply", 10),
		u32("mbdev_connected_valve_exhaust", 12),
		raw("mbdev_connected_button", 14),
		raw("mbdev_connected_alfa", 15),
		raw("vzv_identity", 20),
	},
}

var roomUnitFields = []Field{
	raw("address", 0),
	raw("options", 1),
	raw("co2", 2),
	tenths("temp", 3),
	tenths("humi", 4),
}

var RoomUnitsBlock = Block{
	Name:     "room units",
	Space:    Input,
	Address:  REG_INPUT_UI,
	Quantity: UI_CHANNELS*5 + SENSOR_CHANNELS*5,
	Channels: []Channel{
		{Key: "ui", Offset: 0, Count: UI_CHANNELS, Stride: 5, Fields: roomUnitFields},
		{Key: "sensor", Offset: UI_CHANNELS * 5, Count: SENSOR_CHANNELS, Stride: 5, Fields: roomUnitFields},
	},
}

var AlfaBlock = Block{
	Name:     "alfa",
	Space:    Input,
	Address:  REG_INPUT_ALFA,
	Quantity: ALFA_CHANNELS * 10,
	Channels: []Channel{
		{Key: "alfa", Count: ALFA_CHANNELS, Stride: 10, Fields: append(
			append([]Field(nil), roomUnitFields...),
			tenths("ntc_temp", 5),
		)},
	},
}

var GlobalBlock = Block{
	Name:     "global",
	Space:    Holding,
	Address:  REG_HOLDING_GLOBAL,
	Quantity: 24,
	Fields: []Field{
		raw("func_ventilation", 0),
		at(boostField, REG_BOOST_TM),
		raw("func_circulation_tm", 2),
		raw("func_overpressure_tm", 3),
		raw("func_night_tm", 4),
		raw("func_party_tm", 5),
		u32("func_away_begin", 6),
		u32("func_away_end", 8),
		writable(signedTenths("cfg_temp_set", 10), REG_TEMP_SET, TEMP_SET_MIN, TEMP_SET_MAX),
		writable(tenths("cfg_humi_set", 11), REG_HUMI_SET, 0, 100),
		flag("func_time_prog", 12),
		flag("func_antiradon", 13),
		at(bypassField, REG_BYPASS_ENABLE),
		at(heatingField, REG_HEATING_ENABLE),
		at(coolingField, REG_COOLING_ENABLE),
		writable(flag("cfg_comfort_enable", 17), REG_COMFORT_ENABLE, 0, 1),
		flag("vzv_cb_priority_control", 20),
		flag("vzv_kitchenhood_normally_open", 21),
		raw("vzv_boost_volume_per_run", 22),
		raw("vzv_kitchenhood_boost_volume_per_run", 23),
	},
}

var CorrectionsBlock = Block{
	Name:     "corrections",
	Space:    Holding,
	Address:  REG_HOLDING_CORR,
	Quantity: 98,
	Channels: []Channel{
		{Key: "ui_corr", Offset: 0, Count: UI_CHANNELS, Stride: 5, Fields: []Field{
			signedTenths("temp_corr", 0),
		}},
		{Key: "sensor_corr", Offset: 15, Count: SENSOR_CHANNELS, Stride: 5, Fields: []Field{
			signedTenths("temp_corr", 0),
		}},
		{Key: "alfa_corr", Offset: 60, Count: ALFA_CHANNELS, Stride: 5, Fields: []Field{
			signedTenths("temp_corr", 0),
			signedTenths("ntc_temp_corr", 2),
		}},
	},
}

var ExtSensorsBlock = Block{
	Name:     "external sensors",
	Space:    Holding,
	Address:  REG_EXT_SENSORS,
	Quantity: EXT_SENSOR_CHANNELS * 10,
	Channels: []Channel{
		{Key: "ext_sensors", Count: EXT_SENSOR_CHANNELS, Stride: 10, Fields: []Field{
			flag("present", 0),
			raw("error", 1),
			signedTenths("temperature", 2),
			raw("humidity", 3),
			raw("co2", 4),
			signedTenths("floor_temp", 5),
		}},
	},
}

var ExtButtonsBlock = Block{
	Name:     "external buttons",
	Space:    Holding,
	Address:  REG_EXT_BUTTONS,
	Quantity: EXT_BUTTON_CHANNELS * 10,
	Channels: []Channel{
		{Key: "ext_buttons", Count: EXT_BUTTON_CHANNELS, Stride: 10, Fields: []Field{
			flag("present", 0),
			raw("mode", 1),
			raw("timer", 2),
			flag("active", 3),
		}},
	},
}

// Extended holds the blocks of the full register map. They are read after Active when enabled.
var Extended = []Block{
	DeviceBlock,
	StatsBlock,
	RoomUnitsBlock,
	AlfaBlock,
	GlobalBlock,
	CorrectionsBlock,
	ExtSensorsBlock,
	ExtButtonsBlock,
}

func shift(fields []Field, by uint16) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		f.Offset += by
		out[i] = f
	}
	return out
}

// Blocks returns the read plan for a poll cycle
func Blocks(extended bool) []Block {
	blocks := append([]Block(nil), Active...)
	if extended {
		blocks = append(blocks, Extended...)
	}
	return blocks
}
