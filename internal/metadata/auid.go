package metadata

import (
	"fmt"
	"strings"
)

// auIDSeparator splits an AU id into plugin id and AU key.
const auIDSeparator = "&"

// AuID joins a plugin id and an AU key into an AU id.
func AuID(pluginID, auKey string) string {
	return pluginID + auIDSeparator + auKey
}

// SplitAuID returns the plugin id and AU key of an AU id.
func SplitAuID(auID string) (pluginID, auKey string, err error) {
	i := strings.Index(auID, auIDSeparator)
	if i <= 0 || i == len(auID)-1 {
		return "", "", fmt.Errorf("malformed au id %q", auID)
	}
	return auID[:i], auID[i+1:], nil
}
