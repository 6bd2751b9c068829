package session

import "fmt"

// Address identifies one device of one user.
type Address struct {
	Name     string `json:"name"`
	DeviceID uint32 `json:"device_id"`
}

func NewAddress(name string, deviceID uint32) Address {
	return Address{Name: name, DeviceID: deviceID}
}

func (a Address) String() string {
	return fmt.Sprintf("%s.%d", a.Name, a.DeviceID)
}
