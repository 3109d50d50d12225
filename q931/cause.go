package q931

import "fmt"

// Cause is a Q.850 disconnect/diagnostic reason code, spec.md §6.3.
type Cause uint8

const (
	CauseUnallocated           Cause = 1
	CauseNoRouteTransitNet     Cause = 2
	CauseNoRouteDestination    Cause = 3
	CauseChannelUnacceptable   Cause = 6
	CauseCallAwardedDelivered  Cause = 7
	CauseNormalClearing        Cause = 16
	CauseUserBusy              Cause = 17
	CauseNoUserResponse        Cause = 18
	CauseNoAnswer              Cause = 19
	CauseCallRejected          Cause = 21
	CauseNumberChanged         Cause = 22
	CauseNonSelectedClearing   Cause = 26
	CauseDestOutOfOrder        Cause = 27
	CauseInvalidNumberFormat   Cause = 28
	CauseFacilityRejected      Cause = 29
	CauseStatusEnquiryResp     Cause = 30
	CauseNormalUnspecified     Cause = 31
	CauseCircuitCongestion     Cause = 34
	CauseNetworkOutOfOrder     Cause = 38
	CauseNormalTempFailure     Cause = 41
	CauseSwitchCongestion      Cause = 42
	CauseAccessInfoDiscarded   Cause = 43
	CauseReqChanUnavailable    Cause = 44
	CausePreEmpted             Cause = 45
	CauseFacilityNotSubscribed Cause = 50
	CauseOutgoingCallBarred    Cause = 52
	CauseIncomingCallBarred    Cause = 54
	CauseBearerCapNotAuth      Cause = 57
	CauseBearerCapNotAvail     Cause = 58
	CauseBearerCapNotImpl      Cause = 65
	CauseChanNotImplemented    Cause = 66
	CauseFacilityNotImpl       Cause = 69
	CauseInvalidCallReference  Cause = 81
	CauseIncompatibleDest      Cause = 88
	CauseInvalidMsgUnspecified Cause = 95
	CauseMandatoryIEMissing    Cause = 96
	CauseMessageTypeNonexist   Cause = 97
	CauseWrongMessage          Cause = 98
	CauseIENonexist            Cause = 99
	CauseInvalidIEContents     Cause = 100
	CauseWrongCallState        Cause = 101
	CauseRecoveryOnTimerExpire Cause = 102
	CauseMandatoryIELengthErr  Cause = 103
	CauseProtocolError         Cause = 111
	CauseInterworking          Cause = 127
)

var causeNames = map[Cause]string{
	CauseUnallocated:           "unallocated number",
	CauseNoRouteTransitNet:     "no route to specified transit network",
	CauseNoRouteDestination:    "no route to destination",
	CauseChannelUnacceptable:   "channel unacceptable",
	CauseCallAwardedDelivered:  "call awarded and delivered",
	CauseNormalClearing:        "normal clearing",
	CauseUserBusy:              "user busy",
	CauseNoUserResponse:        "no user responding",
	CauseNoAnswer:              "no answer from user",
	CauseCallRejected:          "call rejected",
	CauseNumberChanged:         "number changed",
	CauseNonSelectedClearing:   "non-selected user clearing",
	CauseDestOutOfOrder:        "destination out of order",
	CauseInvalidNumberFormat:   "invalid number format",
	CauseFacilityRejected:      "facility rejected",
	CauseStatusEnquiryResp:     "response to STATUS ENQUIRY",
	CauseNormalUnspecified:     "normal, unspecified",
	CauseCircuitCongestion:     "no circuit/channel available",
	CauseNetworkOutOfOrder:     "network out of order",
	CauseNormalTempFailure:     "temporary failure",
	CauseSwitchCongestion:      "switching equipment congestion",
	CauseAccessInfoDiscarded:   "access information discarded",
	CauseReqChanUnavailable:    "requested channel not available",
	CausePreEmpted:             "pre-empted",
	CauseFacilityNotSubscribed: "facility not subscribed",
	CauseOutgoingCallBarred:    "outgoing call barred",
	CauseIncomingCallBarred:    "incoming call barred",
	CauseBearerCapNotAuth:      "bearer capability not authorized",
	CauseBearerCapNotAvail:     "bearer capability not presently available",
	CauseBearerCapNotImpl:      "bearer capability not implemented",
	CauseChanNotImplemented:    "channel type not implemented",
	CauseFacilityNotImpl:       "facility not implemented",
	CauseInvalidCallReference:  "invalid call reference value",
	CauseIncompatibleDest:      "incompatible destination",
	CauseInvalidMsgUnspecified: "invalid message, unspecified",
	CauseMandatoryIEMissing:    "mandatory information element is missing",
	CauseMessageTypeNonexist:   "message type non-existent or not implemented",
	CauseWrongMessage:          "message not compatible with call state",
	CauseIENonexist:            "information element non-existent or not implemented",
	CauseInvalidIEContents:     "invalid information element contents",
	CauseWrongCallState:        "message not compatible with call state",
	CauseRecoveryOnTimerExpire: "recovery on timer expiry",
	CauseMandatoryIELengthErr:  "mandatory information element length error",
	CauseProtocolError:         "protocol error, unspecified",
	CauseInterworking:          "interworking, unspecified",
}

// String returns the Q.850 name, or a numeric fallback for unknown values.
func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cause(%d)", uint8(c))
}
