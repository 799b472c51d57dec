package ota

import (
	"fmt"
	"strconv"
)

// GSMCSDIPv4 is the only bearer type this implementation packs into a
// contact point, matching the original's single concrete wiring.
const GSMCSDIPv4 byte = 0x03

// siaVersion is the SIA PDU version byte this implementation emits.
const siaVersion byte = 0x01

// Pack renders a ContactPoint in the SIA binary layout:
//
//	u8 address_length
//	u8 flags          // bit0=bearer-included, bit1=port-included
//	u8 bearer_type    // GSM_CSD_IPV4 = 0x03
//	ASCII(port)       // decimal, variable length, no NUL terminator
//	bytes(ip_address) // raw octets, length = address_length
func (cp ContactPoint) Pack() []byte {
	var flags byte
	if cp.BearerIncluded {
		flags |= 0x01
	}
	if cp.PortIncluded {
		flags |= 0x02
	}

	out := make([]byte, 0, 3+8+len(cp.IPAddress))
	out = append(out, byte(len(cp.IPAddress)))
	out = append(out, flags)
	out = append(out, cp.BearerType)
	if cp.PortIncluded {
		out = append(out, []byte(strconv.Itoa(cp.Port))...)
	}
	out = append(out, cp.IPAddress...)
	return out
}

// PackSIA builds the SIA PDU body: version, application id list, and
// the packed contact point, carried as the body of a
// Pom_SessionRequest_Req.
func PackSIA(appIDs []string, contactPoint ContactPoint) []byte {
	var out []byte
	out = append(out, siaVersion)
	out = append(out, byte(len(appIDs)))
	for _, id := range appIDs {
		out = append(out, byte(len(id)))
		out = append(out, []byte(id)...)
	}
	out = append(out, contactPoint.Pack()...)
	return out
}

// ErrShortSIA is returned by ParseContactPointLength when the buffer is
// too short to hold even the address_length octet.
var ErrShortSIA = fmt.Errorf("ota: SIA buffer too short to read address_length")

// ParseContactPointLength re-reads the first octet of a packed contact
// point and returns the declared address length: packing an address and
// re-reading this octet should always yield exactly len(ip_address).
func ParseContactPointLength(packed []byte) (int, error) {
	if len(packed) < 1 {
		return 0, ErrShortSIA
	}
	return int(packed[0]), nil
}
