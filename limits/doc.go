// Package limits provides centralized size constants and validation functions
// for the pairview stream. Every bound applied to bytes arriving from the
// socket is declared here.
//
// # Size Hierarchy
//
//   - MaxFramePixels (7680×4320): the largest frame a header may announce.
//     Reassembly buffers are sized from the header, so this caps the
//     allocation a single packet can trigger.
//
//   - MaxFramePayload: the planar 4:2:0 byte size of that frame.
//
//   - MaxPacketSize: the largest socket message, an untagged frame carrying
//     MaxFramePayload. The WebSocket read limit is set to this value.
//
//   - MaxParticipantID (256 bytes): the longest participant id accepted in a
//     remote cursor field.
//
// # Validation Functions
//
//	err := limits.ValidatePacket(message)
//	if err != nil {
//	    // ErrPacketEmpty or ErrPacketTooLarge
//	}
//
// For custom size limits, use the generic ValidatePacketSize function:
//
//	err := limits.ValidatePacketSize(data, 4096)
package limits
