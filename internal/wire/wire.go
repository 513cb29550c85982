package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"causalcast/internal/causal"
	"causalcast/internal/clock"
)

// ErrMalformed is returned when a buffer cannot be decoded.
var ErrMalformed = errors.New("malformed wire data")

// Message field numbers.
const (
	msgID      protowire.Number = 1
	msgSender  protowire.Number = 2
	msgPayload protowire.Number = 3
	msgClock   protowire.Number = 4
)

// Delivery field numbers.
const (
	delReceiver  protowire.Number = 1
	delSender    protowire.Number = 2
	delMessageID protowire.Number = 3
	delPayload   protowire.Number = 4
	delClock     protowire.Number = 5
)

// Delivery log field number.
const logEntry protowire.Number = 1

// MarshalMessage encodes a message.
func MarshalMessage(m causal.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, msgID, protowire.BytesType)
	b = protowire.AppendString(b, m.ID())
	b = protowire.AppendTag(b, msgSender, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.Sender())))
	b = protowire.AppendTag(b, msgPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Payload())
	b = appendClock(b, msgClock, m.Clock())
	return b
}

// UnmarshalMessage decodes a message produced by MarshalMessage.
func UnmarshalMessage(b []byte) (causal.Message, error) {
	var (
		id      string
		sender  int64
		payload []byte
		vc      = clock.VectorClock{}
	)

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == msgID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			id = v
			return n, nil
		case num == msgSender && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			sender = protowire.DecodeZigZag(v)
			return n, nil
		case num == msgPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			payload = v
			return n, nil
		case num == msgClock:
			return consumeClock(&vc, typ, b)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return causal.Message{}, fmt.Errorf("message: %w", err)
	}

	return causal.NewMessage(id, int(sender), payload, vc), nil
}

// MarshalDelivery encodes a single delivery record.
func MarshalDelivery(d causal.Delivery) []byte {
	var b []byte
	b = protowire.AppendTag(b, delReceiver, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(d.Receiver)))
	b = protowire.AppendTag(b, delSender, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(d.Sender)))
	b = protowire.AppendTag(b, delMessageID, protowire.BytesType)
	b = protowire.AppendString(b, d.MessageID)
	b = protowire.AppendTag(b, delPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Payload)
	b = appendClock(b, delClock, d.Clock)
	return b
}

// UnmarshalDelivery decodes a delivery record.
func UnmarshalDelivery(b []byte) (causal.Delivery, error) {
	d := causal.Delivery{Clock: clock.VectorClock{}}

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == delReceiver && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			d.Receiver = int(protowire.DecodeZigZag(v))
			return n, nil
		case num == delSender && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			d.Sender = int(protowire.DecodeZigZag(v))
			return n, nil
		case num == delMessageID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			d.MessageID = v
			return n, nil
		case num == delPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			d.Payload = append([]byte(nil), v...)
			return n, nil
		case num == delClock:
			return consumeClock(&d.Clock, typ, b)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return causal.Delivery{}, fmt.Errorf("delivery: %w", err)
	}
	return d, nil
}

// MarshalLog encodes an ordered delivery log.
func MarshalLog(log []causal.Delivery) []byte {
	var b []byte
	for _, d := range log {
		b = protowire.AppendTag(b, logEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalDelivery(d))
	}
	return b
}

// UnmarshalLog decodes a delivery log, preserving order.
func UnmarshalLog(b []byte) ([]causal.Delivery, error) {
	log := []causal.Delivery{}

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != logEntry || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		d, err := UnmarshalDelivery(v)
		if err != nil {
			return 0, err
		}
		log = append(log, d)
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	return log, nil
}

// walk iterates over the fields in b. field consumes one field value and
// returns its length, or a negative protowire error code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

// appendClock writes vc as a packed repeated varint field.
func appendClock(b []byte, num protowire.Number, vc clock.VectorClock) []byte {
	var packed []byte
	for _, v := range vc {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumeClock reads one clock field value, packed or unpacked.
func consumeClock(vc *clock.VectorClock, typ protowire.Type, b []byte) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			*vc = append(*vc, v)
		}
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m, nil
			}
			*vc = append(*vc, v)
			packed = packed[m:]
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: clock has wire type %d", ErrMalformed, typ)
	}
}
