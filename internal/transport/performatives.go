package transport

import (
	"fmt"

	"github.com/flowmesh/routercore/internal/wireenc"
)

/*
<type name="open" class="composite" source="list" provides="frame">
    <descriptor name="amqp:open:list" code="0x00000000:0x00000010"/>
    <field name="container-id" type="string" mandatory="true"/>
    <field name="hostname" type="string"/>
    <field name="max-frame-size" type="uint" default="4294967295"/>
    <field name="channel-max" type="ushort" default="65535"/>
    <field name="properties" type="fields"/>
</type>
*/
type performOpen struct {
	ContainerID  string
	Hostname     string
	MaxFrameSize uint32
	ChannelMax   uint16
	Properties   map[string]interface{}
}

func (o *performOpen) marshal() []byte {
	return wireenc.WriteDescribedList(wireenc.DescriptorOpen, [][]byte{
		wireenc.WriteString(nil, o.ContainerID),
		wireenc.WriteString(nil, o.Hostname),
		wireenc.WriteUint(nil, o.MaxFrameSize),
	})
}

func unmarshalOpen(fields []interface{}) (*performOpen, error) {
	o := &performOpen{MaxFrameSize: 4294967295, ChannelMax: 65535}
	if len(fields) > 0 {
		if s, ok := fields[0].(string); ok {
			o.ContainerID = s
		}
	}
	if len(fields) > 1 {
		if s, ok := fields[1].(string); ok {
			o.Hostname = s
		}
	}
	if len(fields) > 2 {
		if u, ok := fields[2].(uint32); ok {
			o.MaxFrameSize = u
		}
	}
	return o, nil
}

/*
<type name="begin" class="composite" source="list" provides="frame">
    <descriptor name="amqp:begin:list" code="0x00000000:0x00000011"/>
    <field name="remote-channel" type="ushort"/>
    <field name="next-outgoing-id" type="uint" mandatory="true"/>
    <field name="incoming-window" type="uint" mandatory="true"/>
    <field name="outgoing-window" type="uint" mandatory="true"/>
</type>
*/
type performBegin struct {
	RemoteChannel   uint16
	HasRemoteChan   bool
	NextOutgoingID  uint32
	IncomingWindow  uint32
	OutgoingWindow  uint32
}

func (b *performBegin) marshal() []byte {
	return wireenc.WriteDescribedList(wireenc.DescriptorBegin, [][]byte{
		wireenc.WriteUint(nil, uint32(b.RemoteChannel)),
		wireenc.WriteUint(nil, b.NextOutgoingID),
		wireenc.WriteUint(nil, b.IncomingWindow),
		wireenc.WriteUint(nil, b.OutgoingWindow),
	})
}

func unmarshalBegin(fields []interface{}) (*performBegin, error) {
	b := &performBegin{}
	if len(fields) > 0 {
		if u, ok := fields[0].(uint32); ok {
			b.RemoteChannel, b.HasRemoteChan = uint16(u), true
		}
	}
	if len(fields) > 1 {
		if u, ok := fields[1].(uint32); ok {
			b.NextOutgoingID = u
		}
	}
	if len(fields) > 2 {
		if u, ok := fields[2].(uint32); ok {
			b.IncomingWindow = u
		}
	}
	if len(fields) > 3 {
		if u, ok := fields[3].(uint32); ok {
			b.OutgoingWindow = u
		}
	}
	return b, nil
}

/*
<type name="attach" class="composite" source="list" provides="frame">
    <descriptor name="amqp:attach:list" code="0x00000000:0x00000012"/>
    <field name="name" type="string" mandatory="true"/>
    <field name="handle" type="uint" mandatory="true"/>
    <field name="role" type="boolean" mandatory="true"/>
    <field name="source" type="string"/>
    <field name="target" type="string"/>
</type>
*/
type performAttach struct {
	Name      string
	Handle    uint32
	Role      bool // false=sender, true=receiver, per AMQP role encoding
	Source    string
	HasSource bool
	Target    string
	HasTarget bool
}

func (a *performAttach) marshal() []byte {
	role := []byte{0x42} // false
	if a.Role {
		role = []byte{0x41} // true
	}
	return wireenc.WriteDescribedList(wireenc.DescriptorAttach, [][]byte{
		wireenc.WriteString(nil, a.Name),
		wireenc.WriteUint(nil, a.Handle),
		role,
		wireenc.WriteString(nil, a.Source),
		wireenc.WriteString(nil, a.Target),
	})
}

func unmarshalAttach(fields []interface{}) (*performAttach, error) {
	a := &performAttach{}
	if len(fields) > 0 {
		if s, ok := fields[0].(string); ok {
			a.Name = s
		}
	}
	if len(fields) > 1 {
		if u, ok := fields[1].(uint32); ok {
			a.Handle = u
		}
	}
	if len(fields) > 2 {
		if b, ok := fields[2].(bool); ok {
			a.Role = b
		}
	}
	if len(fields) > 3 {
		if s, ok := fields[3].(string); ok && s != "" {
			a.Source, a.HasSource = s, true
		}
	}
	if len(fields) > 4 {
		if s, ok := fields[4].(string); ok && s != "" {
			a.Target, a.HasTarget = s, true
		}
	}
	return a, nil
}

/*
<type name="flow" class="composite" source="list" provides="frame">
    <descriptor name="amqp:flow:list" code="0x00000000:0x00000013"/>
    <field name="handle" type="uint"/>
    <field name="delivery-count" type="uint"/>
    <field name="link-credit" type="uint"/>
    <field name="drain" type="boolean" default="false"/>
</type>
*/
type performFlow struct {
	Handle        uint32
	HasHandle     bool
	DeliveryCount uint32
	LinkCredit    uint32
	Drain         bool
}

func (f *performFlow) marshal() []byte {
	drain := []byte{0x42}
	if f.Drain {
		drain = []byte{0x41}
	}
	return wireenc.WriteDescribedList(wireenc.DescriptorFlow, [][]byte{
		wireenc.WriteUint(nil, f.Handle),
		wireenc.WriteUint(nil, f.DeliveryCount),
		wireenc.WriteUint(nil, f.LinkCredit),
		drain,
	})
}

func unmarshalFlow(fields []interface{}) (*performFlow, error) {
	f := &performFlow{}
	if len(fields) > 0 {
		if u, ok := fields[0].(uint32); ok {
			f.Handle, f.HasHandle = u, true
		}
	}
	if len(fields) > 1 {
		if u, ok := fields[1].(uint32); ok {
			f.DeliveryCount = u
		}
	}
	if len(fields) > 2 {
		if u, ok := fields[2].(uint32); ok {
			f.LinkCredit = u
		}
	}
	if len(fields) > 3 {
		if b, ok := fields[3].(bool); ok {
			f.Drain = b
		}
	}
	return f, nil
}

/*
<type name="transfer" class="composite" source="list" provides="frame">
    <descriptor name="amqp:transfer:list" code="0x00000000:0x00000014"/>
    <field name="handle" type="uint" mandatory="true"/>
    <field name="delivery-id" type="uint"/>
    <field name="settled" type="boolean"/>
</type>
*/
type performTransfer struct {
	Handle     uint32
	DeliveryID uint32
	Settled    bool
	Payload    []byte // the raw AMQP message bytes, appended after the performative frame body
}

func (t *performTransfer) marshal() []byte {
	settled := []byte{0x42}
	if t.Settled {
		settled = []byte{0x41}
	}
	body := wireenc.WriteDescribedList(wireenc.DescriptorTransfer, [][]byte{
		wireenc.WriteUint(nil, t.Handle),
		wireenc.WriteUint(nil, t.DeliveryID),
		settled,
	})
	return append(body, t.Payload...)
}

func unmarshalTransfer(fields []interface{}) (*performTransfer, error) {
	t := &performTransfer{}
	if len(fields) > 0 {
		if u, ok := fields[0].(uint32); ok {
			t.Handle = u
		}
	}
	if len(fields) > 1 {
		if u, ok := fields[1].(uint32); ok {
			t.DeliveryID = u
		}
	}
	if len(fields) > 2 {
		if b, ok := fields[2].(bool); ok {
			t.Settled = b
		}
	}
	return t, nil
}

/*
<type name="disposition" class="composite" source="list" provides="frame">
    <descriptor name="amqp:disposition:list" code="0x00000000:0x00000015"/>
    <field name="role" type="boolean" mandatory="true"/>
    <field name="first" type="uint" mandatory="true"/>
    <field name="settled" type="boolean" default="false"/>
    <field name="state" type="uint"/>
</type>
*/
type performDisposition struct {
	Role    bool
	First   uint32
	Settled bool
	State   uint32
}

func (d *performDisposition) marshal() []byte {
	role := []byte{0x42}
	if d.Role {
		role = []byte{0x41}
	}
	settled := []byte{0x42}
	if d.Settled {
		settled = []byte{0x41}
	}
	return wireenc.WriteDescribedList(wireenc.DescriptorDisposition, [][]byte{
		role,
		wireenc.WriteUint(nil, d.First),
		settled,
		wireenc.WriteUint(nil, d.State),
	})
}

func unmarshalDisposition(fields []interface{}) (*performDisposition, error) {
	d := &performDisposition{}
	if len(fields) > 0 {
		if b, ok := fields[0].(bool); ok {
			d.Role = b
		}
	}
	if len(fields) > 1 {
		if u, ok := fields[1].(uint32); ok {
			d.First = u
		}
	}
	if len(fields) > 2 {
		if b, ok := fields[2].(bool); ok {
			d.Settled = b
		}
	}
	if len(fields) > 3 {
		if u, ok := fields[3].(uint32); ok {
			d.State = u
		}
	}
	return d, nil
}

/*
<type name="detach" class="composite" source="list" provides="frame">
    <descriptor name="amqp:detach:list" code="0x00000000:0x00000016"/>
    <field name="handle" type="uint" mandatory="true"/>
    <field name="closed" type="boolean" default="false"/>
    <field name="error" type="error"/>
</type>
*/
type performDetach struct {
	Handle      uint32
	Closed      bool
	Condition   string
	Description string
	HasError    bool
}

func (d *performDetach) marshal() []byte {
	closed := []byte{0x42}
	if d.Closed {
		closed = []byte{0x41}
	}
	if !d.HasError {
		return wireenc.WriteDescribedList(wireenc.DescriptorDetach, [][]byte{
			wireenc.WriteUint(nil, d.Handle),
			closed,
		})
	}
	errBody := wireenc.WriteDescribedList(errorDescriptor, [][]byte{
		wireenc.WriteSymbol(nil, wireenc.Symbol(d.Condition)),
		wireenc.WriteString(nil, d.Description),
	})
	return wireenc.WriteDescribedList(wireenc.DescriptorDetach, [][]byte{
		wireenc.WriteUint(nil, d.Handle),
		closed,
		errBody,
	})
}

// unmarshalDetach decodes a peer's detach performative, including the
// nested error composite when present.
func unmarshalDetach(fields []interface{}) (*performDetach, error) {
	d := &performDetach{}
	if len(fields) > 0 {
		if u, ok := fields[0].(uint32); ok {
			d.Handle = u
		}
	}
	if len(fields) > 1 {
		if b, ok := fields[1].(bool); ok {
			d.Closed = b
		}
	}
	if len(fields) > 2 && fields[2] != nil {
		if errFields, ok := fields[2].([]interface{}); ok {
			d.HasError = true
			if len(errFields) > 0 {
				if s, ok := errFields[0].(string); ok {
					d.Condition = s
				}
			}
			if len(errFields) > 1 {
				if s, ok := errFields[1].(string); ok {
					d.Description = s
				}
			}
		}
	}
	return d, nil
}

/*
<type name="close" class="composite" source="list" provides="frame">
    <descriptor name="amqp:close:list" code="0x00000000:0x00000018"/>
    <field name="error" type="error"/>
</type>
*/
type performClose struct {
	Condition   string
	Description string
	HasError    bool
}

func (cl *performClose) marshal() []byte {
	if !cl.HasError {
		return wireenc.WriteDescribedList(wireenc.DescriptorClose, nil)
	}
	errBody := wireenc.WriteDescribedList(errorDescriptor, [][]byte{
		wireenc.WriteSymbol(nil, wireenc.Symbol(cl.Condition)),
		wireenc.WriteString(nil, cl.Description),
	})
	return wireenc.WriteDescribedList(wireenc.DescriptorClose, [][]byte{errBody})
}

// errorDescriptor is the amqp:error:list composite's descriptor code,
// used only to build the close/detach error field.
const errorDescriptor uint64 = 0x1d

// unmarshalClose decodes a peer's close performative, including the
// nested error composite when present.
func unmarshalClose(fields []interface{}) (*performClose, error) {
	cl := &performClose{}
	if len(fields) == 0 || fields[0] == nil {
		return cl, nil
	}
	errFields, ok := fields[0].([]interface{})
	if !ok {
		return cl, nil
	}
	cl.HasError = true
	if len(errFields) > 0 {
		if s, ok := errFields[0].(string); ok {
			cl.Condition = s
		}
	}
	if len(errFields) > 1 {
		if s, ok := errFields[1].(string); ok {
			cl.Description = s
		}
	}
	return cl, nil
}

// decodePerformative decodes the frame body's described-list
// performative and returns it alongside whatever bytes follow the
// list in the frame — the transfer performative's message payload, for
// every other performative simply empty.
func decodePerformative(body []byte) (interface{}, []byte, error) {
	desc, fields, n, err := wireenc.DecodeDescribed(body)
	if err != nil {
		return nil, nil, err
	}
	trailing := body[n:]
	switch desc {
	case wireenc.DescriptorOpen:
		p, err := unmarshalOpen(fields)
		return p, trailing, err
	case wireenc.DescriptorBegin:
		p, err := unmarshalBegin(fields)
		return p, trailing, err
	case wireenc.DescriptorAttach:
		p, err := unmarshalAttach(fields)
		return p, trailing, err
	case wireenc.DescriptorFlow:
		p, err := unmarshalFlow(fields)
		return p, trailing, err
	case wireenc.DescriptorTransfer:
		p, err := unmarshalTransfer(fields)
		if p != nil {
			p.Payload = trailing
		}
		return p, trailing, err
	case wireenc.DescriptorDisposition:
		p, err := unmarshalDisposition(fields)
		return p, trailing, err
	case wireenc.DescriptorDetach:
		p, err := unmarshalDetach(fields)
		return p, trailing, err
	case wireenc.DescriptorClose:
		p, err := unmarshalClose(fields)
		return p, trailing, err
	default:
		return nil, nil, fmt.Errorf("transport: unsupported performative descriptor 0x%x", desc)
	}
}
