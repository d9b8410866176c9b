package storage

import (
	"fmt"
	"strings"
)

// RemittancePrefix is the object prefix under which all order evidence lives.
const RemittancePrefix = "orders/"

const remittanceSegment = "remittance"

// RemittanceObjectPath composes orders/{orderID}/remittance/{fileID}/{fileName}.
func RemittanceObjectPath(orderID, fileID, fileName string) (string, error) {
	orderID, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	fileID, err = validateSegment("fileID", fileID)
	if err != nil {
		return "", err
	}
	fileName, err = validateSegment("fileName", fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s/%s/%s", RemittancePrefix, orderID, remittanceSegment, fileID, fileName), nil
}

// RemittancePathRef is the parsed identity of a remittance object.
type RemittancePathRef struct {
	OrderID  string
	FileID   string
	FileName string
}

// ParseRemittancePath reverses RemittanceObjectPath. Objects outside the layout are
// reported with ok=false.
func ParseRemittancePath(path string) (RemittancePathRef, bool) {
	rest, ok := strings.CutPrefix(path, RemittancePrefix)
	if !ok {
		return RemittancePathRef{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != remittanceSegment {
		return RemittancePathRef{}, false
	}
	for _, part := range parts {
		if part == "" {
			return RemittancePathRef{}, false
		}
	}
	return RemittancePathRef{OrderID: parts[0], FileID: parts[2], FileName: parts[3]}, true
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case value == "." || strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
