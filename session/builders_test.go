package session

import (
	"testing"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
	"github.com/stretchr/testify/require"
)

// buildInitiateResponseBody returns the xDLMS InitiateResponse body exactly
// as apdu.DecodeAARE's decodeInitiateResponseBody expects it, grounded on
// apdu/association_test.go's TestDecodeAARE fixture.
func buildInitiateResponseBody(maxPduSize uint16, conformance uint32) []byte {
	return []byte{
		byte(base.TagInitiateResponse),
		0x00, base.DlmsVersion, 0x5F, 0x1F, 0x04, 0x00,
		byte(conformance >> 16), byte(conformance >> 8), byte(conformance),
		byte(maxPduSize >> 8), byte(maxPduSize),
		0x00, 0x00,
	}
}

func buildAARE(result base.AssociationResult, diagnostic base.SourceDiagnostic, maxPduSize uint16, conformance uint32) []byte {
	var content []byte
	content = append(content, 0xa1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, byte(base.ApplicationContextLNNoCiphering))
	content = append(content, 0xa2, 0x03, 0x02, 0x01, byte(result))
	content = append(content, 0xa3, 0x05, 0xa0, 0x03, 0x02, 0x01, byte(diagnostic))
	if result == base.AssociationResultAccepted {
		initiate := buildInitiateResponseBody(maxPduSize, conformance)
		content = append(content, 0xbe, byte(1+1+len(initiate)))
		content = append(content, 0x04, byte(len(initiate)))
		content = append(content, initiate...)
	}
	frame := []byte{byte(base.TagAARE), byte(len(content))}
	frame = append(frame, content...)
	return frame
}

// buildAAREWithSystemTitle is buildAARE plus an A4 calling-AP-title field,
// needed whenever the peer's system title has to survive decoding (HLS
// confirmation verifies the meter's reply against it).
func buildAAREWithSystemTitle(result base.AssociationResult, diagnostic base.SourceDiagnostic, maxPduSize uint16, conformance uint32, systemTitle []byte) []byte {
	var content []byte
	content = append(content, 0xa1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, byte(base.ApplicationContextLNCiphering))
	content = append(content, 0xa2, 0x03, 0x02, 0x01, byte(result))
	content = append(content, 0xa3, 0x05, 0xa0, 0x03, 0x02, 0x01, byte(diagnostic))
	content = append(content, 0xa4, byte(2+len(systemTitle)), 0x04, byte(len(systemTitle)))
	content = append(content, systemTitle...)
	if result == base.AssociationResultAccepted {
		initiate := buildInitiateResponseBody(maxPduSize, conformance)
		content = append(content, 0xbe, byte(1+1+len(initiate)))
		content = append(content, 0x04, byte(len(initiate)))
		content = append(content, initiate...)
	}
	frame := []byte{byte(base.TagAARE), byte(len(content))}
	frame = append(frame, content...)
	return frame
}

// newAssociatedSession drives Connect to completion against a canned AARE
// and queues the remaining responses for whatever the test exercises next.
func newAssociatedSession(t *testing.T, settings *Settings, maxPduSize uint16, responses ...[]byte) (*Session, *fakeTransport) {
	t.Helper()
	allResponses := append([][]byte{buildAARE(base.AssociationResultAccepted, base.SourceDiagnosticNone, maxPduSize, defaultLNConformance)}, responses...)
	transport := newFakeTransport(allResponses...)
	sess := New(transport, settings)
	require.NoError(t, sess.Connect())
	require.Equal(t, base.AssociationAssociated, sess.State())
	return sess, transport
}

// getResponseNormalFrame builds a GET-Response-Normal body (everything after
// the outer CosemTag).
func getResponseNormalFrame(invokeId byte, value []byte) []byte {
	out := []byte{byte(base.TagGetResponse), byte(apdu.GetResponseNormal), invokeId, 0x00}
	return append(out, value...)
}

// getResponseDataBlockFrame builds a GET-Response-WithDataBlock body carrying
// one chunk of the reassembled value.
func getResponseDataBlockFrame(invokeId byte, blockNum uint32, last bool, chunk []byte) []byte {
	var buf []byte
	buf = append(buf, byte(base.TagGetResponse), byte(apdu.GetResponseWithDataBlock), invokeId)
	lastByte := byte(0)
	if last {
		lastByte = 1
	}
	buf = append(buf, lastByte, byte(blockNum>>24), byte(blockNum>>16), byte(blockNum>>8), byte(blockNum), 0x00)
	buf = append(buf, byte(len(chunk)))
	buf = append(buf, chunk...)
	return buf
}

func setResponseNormalFrame(invokeId byte, result base.DlmsResultTag) []byte {
	return []byte{byte(base.TagSetResponse), byte(apdu.SetResponseNormal), invokeId, byte(result)}
}

func setResponseDataBlockFrame(invokeId byte, blockNum uint32) []byte {
	return []byte{byte(base.TagSetResponse), byte(apdu.SetResponseDataBlock), invokeId,
		byte(blockNum >> 24), byte(blockNum >> 16), byte(blockNum >> 8), byte(blockNum)}
}

func setResponseLastDataBlockFrame(invokeId byte, blockNum uint32, result base.DlmsResultTag) []byte {
	return []byte{byte(base.TagSetResponse), byte(apdu.SetResponseLastDataBlock), invokeId, byte(result),
		byte(blockNum >> 24), byte(blockNum >> 16), byte(blockNum >> 8), byte(blockNum)}
}

func actionResponseNormalFrame(invokeId byte, result byte) []byte {
	return []byte{byte(base.TagActionResponse), byte(apdu.ActionResponseNormal), invokeId, result}
}

// actionResponseNormalWithValueFrame builds an ACTION-Response-Normal body
// carrying a successful result plus a return value, the shape
// reply_to_HLS_authentication's server-to-client hash comes back as.
func actionResponseNormalWithValueFrame(t *testing.T, invokeId byte, value axdr.Data) []byte {
	t.Helper()
	enc, err := axdr.Encode(value)
	require.NoError(t, err)
	buf := []byte{byte(base.TagActionResponse), byte(apdu.ActionResponseNormal), invokeId,
		byte(base.ActionResultSuccess), 1, 0}
	return append(buf, enc...)
}

func getResponseWithListFrame(invokeId byte, results []base.DlmsResultTag, values [][]byte) []byte {
	buf := []byte{byte(base.TagGetResponse), byte(apdu.GetResponseWithList), invokeId}
	buf = append(buf, byte(len(results)))
	for i, r := range results {
		if r != base.TagResultSuccess {
			buf = append(buf, 1, byte(r))
			continue
		}
		buf = append(buf, 0)
		buf = append(buf, values[i]...)
	}
	return buf
}

func setResponseWithListFrame(invokeId byte, results []base.DlmsResultTag) []byte {
	buf := []byte{byte(base.TagSetResponse), byte(apdu.SetResponseWithList), invokeId}
	buf = append(buf, byte(len(results)))
	for _, r := range results {
		buf = append(buf, byte(r))
	}
	return buf
}

// actionResponseNextPBlockFrame answers a blocked ACTION-Request argument
// chunk: the meter pulling the next piece by block number.
func actionResponseNextPBlockFrame(invokeId byte, blockNum uint32) []byte {
	return []byte{byte(base.TagActionResponse), byte(apdu.ActionResponseNextPBlock), invokeId,
		byte(blockNum >> 24), byte(blockNum >> 16), byte(blockNum >> 8), byte(blockNum)}
}

// actionResponseWithPBlockFrame carries one chunk of a blocked method return
// value (ActionBlockHeader has no error byte, unlike GetBlockHeader).
func actionResponseWithPBlockFrame(invokeId byte, blockNum uint32, last bool, chunk []byte) []byte {
	lastByte := byte(0)
	if last {
		lastByte = 1
	}
	buf := []byte{byte(base.TagActionResponse), byte(apdu.ActionResponseWithPBlock), invokeId,
		lastByte, byte(blockNum >> 24), byte(blockNum >> 16), byte(blockNum >> 8), byte(blockNum)}
	buf = append(buf, byte(len(chunk)))
	buf = append(buf, chunk...)
	return buf
}
