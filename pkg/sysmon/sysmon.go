// Package sysmon decodes single Sysmon operational-log XML records into
// typed telemetry events. Only the event types the subgraph generator maps
// are supported: process creation (event id 1), network connections (event
// id 3, split into inbound/outbound by the Initiated field) and file
// creation (event id 11).
package sysmon

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the telemetry event variants.
type Kind string

const (
	KindProcessCreate   Kind = "PROCESS_CREATE"
	KindFileCreate      Kind = "FILE_CREATE"
	KindInboundNetwork  Kind = "INBOUND_NETWORK"
	KindOutboundNetwork Kind = "OUTBOUND_NETWORK"
)

// Sysmon operational-log event ids.
const (
	eventIDProcessCreate     = 1
	eventIDNetworkConnection = 3
	eventIDFileCreate        = 11
)

// Event is the telemetry event sum type. It is sealed: the only
// implementations are the event structs in this package, so dispatching
// over the concrete types is exhaustive.
type Event interface {
	Kind() Kind
	Asset() string
	sealed()
}

// Header carries the fields common to every event variant.
type Header struct {
	Computer string
	EventID  int
}

// Asset returns the host/asset identifier that observed the event.
func (h Header) Asset() string { return h.Computer }

func (Header) sealed() {}

// ProcessCreateEvent is a Sysmon event id 1 record.
type ProcessCreateEvent struct {
	Header
	UtcTime         string
	ProcessID       uint64
	ParentProcessID uint64
	Image           string
	ParentImage     string
	CommandLine     string
}

// Kind implements Event.
func (ProcessCreateEvent) Kind() Kind { return KindProcessCreate }

// FileCreateEvent is a Sysmon event id 11 record.
type FileCreateEvent struct {
	Header
	CreationUtcTime string
	ProcessID       uint64
	Image           string
	TargetFilename  string
}

// Kind implements Event.
func (FileCreateEvent) Kind() Kind { return KindFileCreate }

// NetworkEvent carries the fields shared by both directions of a Sysmon
// event id 3 record. Source is always the monitored host's side.
type NetworkEvent struct {
	Header
	UtcTime             string
	ProcessID           uint64
	Image               string
	Protocol            string
	SourceHostname      string
	SourcePort          uint16
	DestinationHostname string
	DestinationPort     uint16
}

// InboundNetworkEvent is a connection accepted by the monitored host.
type InboundNetworkEvent struct {
	NetworkEvent
}

// Kind implements Event.
func (InboundNetworkEvent) Kind() Kind { return KindInboundNetwork }

// OutboundNetworkEvent is a connection initiated by the monitored host.
type OutboundNetworkEvent struct {
	NetworkEvent
}

// Kind implements Event.
func (OutboundNetworkEvent) Kind() Kind { return KindOutboundNetwork }

// ParseError reports an unparseable or unsupported record.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sysmon: %s: %v", e.Reason, e.Err)
	}
	return "sysmon: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// xmlEvent mirrors the Sysmon XML envelope. EventData fields are a flat
// list of Data elements keyed by the Name attribute.
type xmlEvent struct {
	XMLName xml.Name `xml:"Event"`
	System  struct {
		EventID  int    `xml:"EventID"`
		Computer string `xml:"Computer"`
	} `xml:"System"`
	EventData struct {
		Data []struct {
			Name  string `xml:"Name,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"EventData"`
}

// Parse decodes one XML record into a typed event.
func Parse(record string) (Event, error) {
	record = strings.TrimSpace(record)
	if record == "" {
		return nil, &ParseError{Reason: "empty record"}
	}

	var raw xmlEvent
	if err := xml.Unmarshal([]byte(record), &raw); err != nil {
		return nil, &ParseError{Reason: "malformed xml", Err: err}
	}

	data := make(map[string]string, len(raw.EventData.Data))
	for _, d := range raw.EventData.Data {
		data[d.Name] = d.Value
	}

	header := Header{Computer: raw.System.Computer, EventID: raw.System.EventID}

	switch raw.System.EventID {
	case eventIDProcessCreate:
		return parseProcessCreate(header, data)
	case eventIDNetworkConnection:
		return parseNetworkConnection(header, data)
	case eventIDFileCreate:
		return parseFileCreate(header, data)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported event id %d", raw.System.EventID)}
	}
}

func parseProcessCreate(header Header, data map[string]string) (Event, error) {
	pid, err := requireUint(data, "ProcessId")
	if err != nil {
		return nil, err
	}
	ppid, err := requireUint(data, "ParentProcessId")
	if err != nil {
		return nil, err
	}
	image, err := require(data, "Image")
	if err != nil {
		return nil, err
	}
	utcTime, err := require(data, "UtcTime")
	if err != nil {
		return nil, err
	}

	return &ProcessCreateEvent{
		Header:          header,
		UtcTime:         utcTime,
		ProcessID:       pid,
		ParentProcessID: ppid,
		Image:           image,
		ParentImage:     data["ParentImage"],
		CommandLine:     data["CommandLine"],
	}, nil
}

func parseFileCreate(header Header, data map[string]string) (Event, error) {
	pid, err := requireUint(data, "ProcessId")
	if err != nil {
		return nil, err
	}
	target, err := require(data, "TargetFilename")
	if err != nil {
		return nil, err
	}
	// Sysmon stamps file creations with CreationUtcTime rather than UtcTime.
	utcTime := data["CreationUtcTime"]
	if utcTime == "" {
		var err error
		utcTime, err = require(data, "UtcTime")
		if err != nil {
			return nil, err
		}
	}

	return &FileCreateEvent{
		Header:          header,
		CreationUtcTime: utcTime,
		ProcessID:       pid,
		Image:           data["Image"],
		TargetFilename:  target,
	}, nil
}

func parseNetworkConnection(header Header, data map[string]string) (Event, error) {
	pid, err := requireUint(data, "ProcessId")
	if err != nil {
		return nil, err
	}
	utcTime, err := require(data, "UtcTime")
	if err != nil {
		return nil, err
	}
	srcPort, err := requirePort(data, "SourcePort")
	if err != nil {
		return nil, err
	}
	dstPort, err := requirePort(data, "DestinationPort")
	if err != nil {
		return nil, err
	}

	// Hostnames fall back to the literal IP when reverse lookup was off.
	srcHost := firstNonEmpty(data["SourceHostname"], data["SourceIp"])
	if srcHost == "" {
		return nil, &ParseError{Reason: "missing field SourceHostname/SourceIp"}
	}
	dstHost := firstNonEmpty(data["DestinationHostname"], data["DestinationIp"])
	if dstHost == "" {
		return nil, &ParseError{Reason: "missing field DestinationHostname/DestinationIp"}
	}

	net := NetworkEvent{
		Header:              header,
		UtcTime:             utcTime,
		ProcessID:           pid,
		Image:               data["Image"],
		Protocol:            data["Protocol"],
		SourceHostname:      srcHost,
		SourcePort:          srcPort,
		DestinationHostname: dstHost,
		DestinationPort:     dstPort,
	}

	initiated, err := strconv.ParseBool(strings.TrimSpace(data["Initiated"]))
	if err != nil {
		return nil, &ParseError{Reason: "missing or malformed field Initiated", Err: err}
	}
	if initiated {
		return &OutboundNetworkEvent{NetworkEvent: net}, nil
	}
	return &InboundNetworkEvent{NetworkEvent: net}, nil
}

func require(data map[string]string, name string) (string, error) {
	v := data[name]
	if v == "" {
		return "", &ParseError{Reason: "missing field " + name}
	}
	return v, nil
}

func requireUint(data map[string]string, name string) (uint64, error) {
	v, err := require(data, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &ParseError{Reason: "malformed field " + name, Err: err}
	}
	return n, nil
}

func requirePort(data map[string]string, name string) (uint16, error) {
	v, err := require(data, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
	if err != nil {
		return 0, &ParseError{Reason: "malformed field " + name, Err: err}
	}
	return uint16(n), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
