package wire

// ReportResponse field numbers.
const (
	responseCommands = 1
	responseReceive  = 2
	responseTransmit = 3
	responseErrors   = 4
	commandDisable   = 1
)

// ReportResponse is the collector's reply to a report. Receive and transmit
// timestamps are on the collector's clock, in microseconds since the epoch;
// zero means the collector did not supply them.
type ReportResponse struct {
	Errors         []string
	ReceiveMicros  int64
	TransmitMicros int64
	Disable        bool
}

// HasTimestamps reports whether the response can be used as a clock sample.
func (r *ReportResponse) HasTimestamps() bool {
	return r.ReceiveMicros != 0 && r.TransmitMicros != 0
}

// EncodeReportResponse serializes r. Tracers never send responses; fake
// collectors in tests and tools do.
func EncodeReportResponse(r *ReportResponse) []byte {
	var b []byte
	if r.Disable {
		b = appendBytesField(b, responseCommands, appendBoolField(nil, commandDisable, true))
	}
	if r.ReceiveMicros != 0 {
		b = appendBytesField(b, responseReceive, appendTimestamp(nil, r.ReceiveMicros))
	}
	if r.TransmitMicros != 0 {
		b = appendBytesField(b, responseTransmit, appendTimestamp(nil, r.TransmitMicros))
	}
	for _, e := range r.Errors {
		b = appendStringField(b, responseErrors, e)
	}
	return b
}

// DecodeReportResponse parses a collector response. An empty input decodes to
// an empty response.
func DecodeReportResponse(b []byte) (*ReportResponse, error) {
	r := &ReportResponse{}
	err := walk(b, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case responseCommands:
			msg, n, err := consumeDelimited(t, b)
			if err != nil {
				return 0, err
			}
			return n, walk(msg, func(num uint64, t Type, b []byte) (int, error) {
				if num != commandDisable {
					return 0, nil
				}
				v, n, err := consumeUint(t, b)
				if v != 0 {
					r.Disable = true
				}
				return n, err
			})
		case responseReceive:
			v, n, err := consumeTimestamp(t, b)
			r.ReceiveMicros = v
			return n, err
		case responseTransmit:
			v, n, err := consumeTimestamp(t, b)
			r.TransmitMicros = v
			return n, err
		case responseErrors:
			v, n, err := consumeDelimited(t, b)
			if err == nil {
				r.Errors = append(r.Errors, string(v))
			}
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
