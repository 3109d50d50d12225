package q931

import "github.com/ispbx/goisdn/q931/ie"

// This init wires the Q.931 call-record semantics into the shared ie
// registry. It runs once at package load so every Engine shares one table,
// matching spec.md §4.3 "the registry is a flat table".
func init() {
	ie.Register(&ie.Descriptor{
		ID:   ie.ChannelIdent,
		Name: "Channel Identification",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			chID, err := ie.DecodeChannelID(data)
			if err != nil {
				return err
			}
			c.Channel = ChannelSelection{chID}
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			if !c.Channel.HasChannel && !c.Channel.DS1Explicit {
				return ie.TxOmit
			}
			enc := ie.EncodeChannelID(c.Channel.ChannelID)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.BearerCapability,
		Name: "Bearer Capability",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			bc, err := ie.DecodeBearerCapability(data)
			if err != nil {
				return err
			}
			c.Bearer = bc
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			enc := ie.EncodeBearerCapability(c.Bearer, c.ATT4ESS)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.CauseIE,
		Name: "Cause",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			coding, loc, val, _, err := ie.DecodeCause(data)
			if err != nil {
				return err
			}
			c.Cause.Present = true
			c.Cause.Coding = coding
			c.Cause.Location = loc
			c.Cause.Value = Cause(val)
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			if !c.Cause.Present {
				return ie.TxOmit
			}
			enc := ie.EncodeCause(c.Cause.Coding, c.Cause.Location, uint8(c.Cause.Value), nil)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.CallingPartyNumber,
		Name: "Calling Party Number",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			n, err := ie.DecodeNumber(data, true)
			if err != nil {
				return err
			}
			c.Caller = Party{Number: n.Digits, NumberingPlan: n.NumberingPlan, TypeOfNumber: n.TypeOfNumber, Presentation: n.Presentation}
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			if c.Caller.Number == "" {
				return ie.TxOmit
			}
			enc := ie.EncodeNumber(ie.Number{TypeOfNumber: c.Caller.TypeOfNumber, NumberingPlan: c.Caller.NumberingPlan, Presentation: c.Caller.Presentation, HasPresentation: true, Digits: c.Caller.Number}, true)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.CalledPartyNumber,
		Name: "Called Party Number",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			n, err := ie.DecodeNumber(data, false)
			if err != nil {
				return err
			}
			c.Called = Party{Number: n.Digits, NumberingPlan: n.NumberingPlan, TypeOfNumber: n.TypeOfNumber}
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			if c.Called.Number == "" {
				return ie.TxOmit
			}
			enc := ie.EncodeNumber(ie.Number{TypeOfNumber: c.Called.TypeOfNumber, NumberingPlan: c.Called.NumberingPlan, Digits: c.Called.Number}, false)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.Progress,
		Name: "Progress Indicator",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			coding, loc, ind, err := ie.DecodeProgress(data)
			if err != nil {
				return err
			}
			c.Progress.Present = true
			c.Progress.Coding = coding
			c.Progress.Location = loc
			c.Progress.Indicator = ind
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			if !c.Progress.Present {
				return ie.TxOmit
			}
			enc := ie.EncodeProgress(c.Progress.Coding, c.Progress.Location, c.Progress.Indicator)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})

	ie.Register(&ie.Descriptor{
		ID:   ie.RestartIndicator,
		Name: "Restart Indicator",
		Receive: func(call interface{}, _ uint8, data []byte) error {
			c := call.(*Call)
			class, err := ie.DecodeRestartIndicator(data)
			if err != nil {
				return err
			}
			c.RestartIndicator = class
			return nil
		},
		Transmit: func(call interface{}, _ uint8, buf []byte) int {
			c := call.(*Call)
			enc := ie.EncodeRestartIndicator(c.RestartIndicator)
			if len(enc) > len(buf) {
				return ie.TxFail
			}
			return copy(buf, enc)
		},
	})
}
