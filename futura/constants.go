package futura

import (
	"futura2mqtt/bimap"
)

const COMPONENT_SENSOR = "sensor"
const COMPONENT_NUMBER = "number"
const COMPONENT_SWITCH = "switch"

const STATE_ON = "ON"
const STATE_OFF = "OFF"

const STATUS_ONLINE = "online"
const STATUS_OFFLINE = "offline"

const SET_SUFFIX = "/set"

// Entity binds an MQTT object to a snapshot field
type Entity struct {
	Object    string // last topic level
	Key       string // snapshot field key
	Component string
	Smooth    bool // published as a moving average when smoothing is enabled
}

// Entities is the fixed set of objects published for every device
var Entities = []Entity{
	{Object: "temp_ambient", Key: "fut_temp_ambient", Component: COMPONENT_SENSOR, Smooth: true},
	{Object: "temp_fresh", Key: "fut_temp_fresh", Component: COMPONENT_SENSOR, Smooth: true},
	{Object: "temp_indoor", Key: "fut_temp_indoor", Component: COMPONENT_SENSOR, Smooth: true},
	{Object: "temp_waste", Key: "fut_temp_waste", Component: COMPONENT_SENSOR, Smooth: true},
	{Object: "humi_ambient", Key: "fut_humi_ambient", Component: COMPONENT_SENSOR},
	{Object: "humi_fresh", Key: "fut_humi_fresh", Component: COMPONENT_SENSOR},
	{Object: "humi_indoor", Key: "fut_humi_indoor", Component: COMPONENT_SENSOR},
	{Object: "humi_waste", Key: "fut_humi_waste", Component: COMPONENT_SENSOR},
	{Object: "device_consumption", Key: "fut_power_consumption", Component: COMPONENT_SENSOR},
	{Object: "heat_recovery", Key: "fut_heat_recovering", Component: COMPONENT_SENSOR},
	{Object: "heating_consumption", Key: "fut_heating_power", Component: COMPONENT_SENSOR},
	{Object: "boost_tm", Key: "func_boost_tm", Component: COMPONENT_NUMBER},
	{Object: "bypass", Key: "cfg_bypass_enable", Component: COMPONENT_SWITCH},
	{Object: "heating", Key: "cfg_heating_enable", Component: COMPONENT_SWITCH},
	{Object: "cooling", Key: "cfg_cooling_enable", Component: COMPONENT_SWITCH},
}

// Objects maps object ids to field keys and back
var Objects = newObjectMap()

func newObjectMap() *bimap.BiMap[string, string] {
	m := bimap.NewBiMap[string, string]()
	for _, e := range Entities {
		m.Insert(e.Object, e.Key)
	}
	m.MakeImmutable()
	return m
}
