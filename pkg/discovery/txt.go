package discovery

import (
	"fmt"
	"strings"
)

// encodeTXT builds the "key=value" TXT strings for an advertisement.
func encodeTXT(deviceID, protocol string) []string {
	txt := []string{fmt.Sprintf("%s=%s", TXTKeyDeviceID, deviceID)}
	if protocol != "" {
		txt = append(txt, fmt.Sprintf("%s=%s", TXTKeyProtocol, protocol))
	}
	return txt
}

// parseTXT splits "key=value" TXT strings into a map. A key without a
// value is kept with an empty value.
func parseTXT(values []string) map[string]string {
	txt := make(map[string]string, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}
