package q931

import "fmt"

// MsgType is a Q.931 message type byte.
type MsgType uint8

const (
	Alerting            MsgType = 0x01
	CallProceeding      MsgType = 0x02
	Connect             MsgType = 0x07
	ConnectAcknowledge  MsgType = 0x0f
	Progress            MsgType = 0x03
	Setup               MsgType = 0x05
	SetupAcknowledge    MsgType = 0x0d
	Disconnect          MsgType = 0x45
	Release             MsgType = 0x4d
	ReleaseComplete     MsgType = 0x5a
	Restart             MsgType = 0x46
	RestartAcknowledge  MsgType = 0x4e
	Status              MsgType = 0x7d
	StatusEnquiry       MsgType = 0x75
	UserInformation     MsgType = 0x20
	Segment             MsgType = 0x00
	CongestionControl   MsgType = 0x79
	Information         MsgType = 0x7b
	Facility            MsgType = 0x62
	Notify              MsgType = 0x6e
	Hold                MsgType = 0x24
	HoldAcknowledge     MsgType = 0x28
	HoldReject          MsgType = 0x29
	Retrieve            MsgType = 0x31
	RetrieveAcknowledge MsgType = 0x33
	RetrieveReject      MsgType = 0x37
	Resume              MsgType = 0x2d
	ResumeAcknowledge   MsgType = 0x2e
	ResumeReject        MsgType = 0x22
	Suspend             MsgType = 0x25
	SuspendAcknowledge  MsgType = 0x2c
	SuspendReject       MsgType = 0x21

	// ServiceAck is the AT&T maintenance quirk: protocol discriminator
	// 0x03 is reflected back to the peer with a toggled bit rather than
	// parsed as a normal Q.931 message (spec.md §4.2, §9 open questions).
	ServiceAck MsgType = 0xff
)

var msgNames = map[MsgType]string{
	Alerting: "ALERTING", CallProceeding: "CALL PROCEEDING", Connect: "CONNECT",
	ConnectAcknowledge: "CONNECT ACKNOWLEDGE", Progress: "PROGRESS", Setup: "SETUP",
	SetupAcknowledge: "SETUP ACKNOWLEDGE", Disconnect: "DISCONNECT", Release: "RELEASE",
	ReleaseComplete: "RELEASE COMPLETE", Restart: "RESTART", RestartAcknowledge: "RESTART ACKNOWLEDGE",
	Status: "STATUS", StatusEnquiry: "STATUS ENQUIRY", UserInformation: "USER INFORMATION",
	CongestionControl: "CONGESTION CONTROL", Information: "INFORMATION", Facility: "FACILITY",
	Notify: "NOTIFY", Hold: "HOLD", HoldAcknowledge: "HOLD ACKNOWLEDGE", HoldReject: "HOLD REJECT",
	Retrieve: "RETRIEVE", RetrieveAcknowledge: "RETRIEVE ACKNOWLEDGE", RetrieveReject: "RETRIEVE REJECT",
	Resume: "RESUME", ResumeAcknowledge: "RESUME ACKNOWLEDGE", ResumeReject: "RESUME REJECT",
	Suspend: "SUSPEND", SuspendAcknowledge: "SUSPEND ACKNOWLEDGE", SuspendReject: "SUSPEND REJECT",
}

func (m MsgType) String() string {
	if name, ok := msgNames[m]; ok {
		return name
	}
	return fmt.Sprintf("msg(%#02x)", uint8(m))
}

// ProtocolDiscriminator values, spec.md §4.2.
const (
	ProtoQ931       = 0x08
	ProtoMaintenance = 0x03 // AT&T maintenance; reflected, not parsed
)
