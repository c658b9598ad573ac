package hubconn

import "encoding/json"

// handshakeRequest is the single negotiation frame HubConnection.Start emits
// before any invocation: {"protocol": <codec name>, "version": 1}. It is
// written by a dedicated writer rather than the Protocol itself (spec §6).
type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// writeHandshake serializes the negotiation frame for protocolName, using the
// same record-separator framing the JSON hub protocol uses on the wire.
func writeHandshake(protocolName string) ([]byte, error) {
	data, err := json.Marshal(handshakeRequest{Protocol: protocolName, Version: 1})
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}
