package methods

import "github.com/juju/schema"

// Default holds the methods devices in the field understand.
var Default = defaultSet()

func defaultSet() *Set {
	s := NewSet()
	s.Register("turnOnLed", schema.FieldMap(
		schema.Fields{"on": schema.Bool()},
		nil,
	))
	s.Register("setThreshold", schema.FieldMap(
		schema.Fields{"threshold": Range(0, 100)},
		nil,
	))
	s.Register("reboot", NoParams())
	s.Register("getSensors", NoParams())
	s.Register("getDeviceState", NoParams())
	s.Register("updateDevice", schema.FieldMap(
		schema.Fields{
			"name":            schema.String(),
			"firmwareVersion": schema.String(),
			"status":          schema.OneOf(schema.Const("online"), schema.Const("offline")),
		},
		schema.Defaults{
			"name":            schema.Omit,
			"firmwareVersion": schema.Omit,
			"status":          schema.Omit,
		},
	))
	return s
}
