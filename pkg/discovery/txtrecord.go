package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records a server advertises.
func EncodeTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyName: info.Name}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	if info.Protocol != "" {
		txt[TXTKeyProtocol] = info.Protocol
	}
	return txt
}

// DecodeTXT parses server TXT records. Only the name is required.
func DecodeTXT(txt TXTRecordMap) (*ServerInfo, error) {
	name, ok := txt[TXTKeyName]
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRecord, TXTKeyName)
	}
	return &ServerInfo{
		Name:     name,
		Version:  txt[TXTKeyVersion],
		Protocol: txt[TXTKeyProtocol],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found && k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}

// InstanceName derives the mDNS instance name from a server name.
func InstanceName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name, nil
}
