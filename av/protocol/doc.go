// Package protocol decodes the pairview screen-share wire format.
//
// The video socket carries two coexisting wire variants. Both use
// little-endian integers.
//
// # Untagged variant
//
// The first four bytes hold a kind (0 = frame, 1 = ping):
//
//	ping:  [kind:4][sendTs:8]            (legacy [kind:4][sendTs:4] also accepted)
//	frame: [kind:4][width:4][height:4][captureTs:8][sendTs:8][Y][U][V]
//
// A frame packet carries the whole planar 4:2:0 frame.
//
// # Tagged variant
//
// The first byte is an ASCII tag:
//
//	'H': [tag:1][width:2][height:2][captureTs:8][frameId:4][chunksTotal:1][extensions...]
//	'D': [tag:1][frameId:4][chunkIndex:2][chunkSize:4][chunk...]
//
// Header extensions are optional fields, each preceded by a one-byte presence
// flag: remote-control-enabled (bool), show-custom-cursor (bool) and
// participant cursor location (two float64 in [0,1], then a uint32
// length-prefixed UTF-8 participant id).
//
// # Discrimination
//
// The untagged kind is a little-endian uint32 with value 0 or 1, so its first
// byte is 0x00 or 0x01. The tagged variant starts with 'H' (0x48) or 'D'
// (0x44). The first byte therefore selects the variant unambiguously:
//
//	dec := protocol.NewDecoder(protocol.VariantAuto)
//	pkt, err := dec.Decode(data)
//	if err != nil {
//	    return // malformed packets are dropped
//	}
//	switch p := pkt.(type) {
//	case *protocol.Header:
//	case *protocol.DataChunk:
//	case *protocol.Frame:
//	case *protocol.Ping:
//	}
//
// Decoded chunk and plane payloads are views into the input slice; nothing is
// copied. The caller must not reuse the input buffer while a view is live.
package protocol
