package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/metergrid/godlms/base"
	"go.uber.org/zap"
)

// loopbackMeter is an in-memory base.Stream double standing in for a real
// meter over TCP or serial (out of scope — see spec Non-goals): it
// interprets the application-layer APDUs written to it and produces the
// matching response, so the session engine's association, GET and SET
// drivers can be exercised end to end without a physical device. It never
// decodes with the apdu package; every response is hand-built from the
// fixed byte shapes apdu/association.go and apdu/get.go/set.go document.
type loopbackMeter struct {
	open     bool
	pending  *bytes.Reader
	register uint32 // canned register value, mutated by SET so read-after-write is visible
}

func newLoopbackMeter() *loopbackMeter {
	return &loopbackMeter{register: 12345}
}

func (m *loopbackMeter) Open() error             { m.open = true; return nil }
func (m *loopbackMeter) Close() error             { m.open = false; return nil }
func (m *loopbackMeter) Disconnect() error        { m.open = false; return nil }
func (m *loopbackMeter) IsOpen() bool             { return m.open }
func (m *loopbackMeter) SetLogger(*zap.SugaredLogger) {}
func (m *loopbackMeter) SetDeadline(time.Time)    {}
func (m *loopbackMeter) SetMaxReceivedBytes(int64) {}

func (m *loopbackMeter) Read(p []byte) (int, error) {
	if m.pending == nil {
		return 0, io.EOF
	}
	return m.pending.Read(p)
}

func (m *loopbackMeter) Write(src []byte) error {
	resp, err := m.respond(src)
	if err != nil {
		return err
	}
	m.pending = bytes.NewReader(resp)
	return nil
}

func (m *loopbackMeter) respond(req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, fmt.Errorf("loopback: empty request")
	}
	switch base.CosemTag(req[0]) {
	case base.TagAARQ:
		return buildAARE(), nil
	case base.TagRLRQ:
		return []byte{byte(base.TagRLRE), 0x00}, nil
	case base.TagGetRequest:
		return m.respondGet(req)
	case base.TagSetRequest:
		return m.respondSet(req)
	default:
		return nil, fmt.Errorf("loopback: unsupported request tag %#x", req[0])
	}
}

// buildAARE hand-builds a minimal accepting AARE for an unauthenticated
// logical-name, no-ciphering association, matching the exact field shapes
// apdu.DecodeAARE parses (application-context-name, association-result,
// source-diagnostic, and an xDLMS InitiateResponse user-information field).
func buildAARE() []byte {
	appCtx := []byte{0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, byte(base.ApplicationContextLNNoCiphering)}
	result := []byte{0x02, 0x01, byte(base.AssociationResultAccepted)}
	diagnostic := []byte{0xa1, 0x03, 0x02, 0x01, byte(base.SourceDiagnosticNone)}

	conformance := uint32(base.ConformanceBlockGet | base.ConformanceBlockSet | base.ConformanceBlockAction |
		base.ConformanceBlockBlockTransferWithGetOrRead | base.ConformanceBlockBlockTransferWithSetOrWrite)
	initiateResponse := []byte{
		byte(base.TagInitiateResponse),
		0x00,                     // no negotiated-quality-of-service
		base.DlmsVersion,         // dlms version
		0x5F, 0x1F, 0x04, 0x00, // BIT STRING tag/length/unused-bits of the conformance field
		byte(conformance >> 16), byte(conformance >> 8), byte(conformance),
		0x04, 0x00, // server max-receive-pdu-size: 1024
		0x00, 0x00, // VA address
	}
	userInfo := append([]byte{0x04, byte(len(initiateResponse))}, initiateResponse...)

	var content bytes.Buffer
	writeBERField(&content, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeApplicationContextName, appCtx)
	writeBERField(&content, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeCalledAPTitle, result)
	writeBERField(&content, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeCalledAEQualifier, diagnostic)
	writeBERField(&content, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeUserInformation, userInfo)

	var out bytes.Buffer
	writeBERField(&out, byte(base.TagAARE), content.Bytes())
	return out.Bytes()
}

func writeBERField(dst *bytes.Buffer, tag byte, data []byte) {
	dst.WriteByte(tag)
	dst.WriteByte(byte(len(data)))
	dst.Write(data)
}

// respondGet answers a GET-Request-Normal (tag, variant, invoke-id, cosem
// descriptor, access-selection flag) with a canned value keyed on class-id:
// the Clock IC (class 8) returns a DateTime, anything else a
// DoubleLongUnsigned register value, matching the wire shape spec scenario S3 exercises.
func (m *loopbackMeter) respondGet(req []byte) ([]byte, error) {
	if len(req) < 12 {
		return nil, fmt.Errorf("loopback: truncated get-request")
	}
	invokeId := req[2]
	classId := uint16(req[3])<<8 | uint16(req[4])

	var value []byte
	if classId == clockClassId {
		now := time.Now().UTC()
		value = []byte{
			25, // axdr.TagDateTime
			byte(now.Year() >> 8), byte(now.Year()),
			byte(now.Month()), byte(now.Day()), byte(now.Weekday()),
			byte(now.Hour()), byte(now.Minute()), byte(now.Second()), 0x00,
			0x00, 0x00, // deviation = 0
			0x00, // status
		}
	} else {
		value = []byte{0x06, byte(m.register >> 24), byte(m.register >> 16), byte(m.register >> 8), byte(m.register)}
	}

	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagGetResponse))
	dst.WriteByte(0x01) // GetResponseNormal
	dst.WriteByte(invokeId)
	dst.WriteByte(0x00) // success
	dst.Write(value)
	return dst.Bytes(), nil
}

// respondSet answers a SET-Request-Normal (tag, invoke-id, variant, cosem
// descriptor, access-selection flag, value), storing the new value when it
// addresses the canned register so a subsequent GET reflects it.
func (m *loopbackMeter) respondSet(req []byte) ([]byte, error) {
	if len(req) < 3 {
		return nil, fmt.Errorf("loopback: truncated set-request")
	}
	invokeId := req[1]

	if idx := bytes.IndexByte(req, 0x06); idx >= 0 && idx+4 < len(req) {
		m.register = uint32(req[idx+1])<<24 | uint32(req[idx+2])<<16 | uint32(req[idx+3])<<8 | uint32(req[idx+4])
	}

	return []byte{byte(base.TagSetResponse), 0x01, invokeId, 0x00}, nil
}

const clockClassId = 8
