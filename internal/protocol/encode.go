package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Live/internal/domain"
)

// Encode marshals a frame. Every server message is a plain struct, so failure is a programming error.
func Encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("protocol: encode: " + err.Error())
	}
	return b
}

func UserJoinedFrame(p domain.Participant) []byte {
	return Encode(UserJoined{Type: TypeUserJoined, ParticipantID: p.ID, Role: p.Role, Seat: p.Seat})
}

func UserLeftFrame(id domain.ParticipantID) []byte {
	return Encode(UserLeft{Type: TypeUserLeft, ParticipantID: id})
}

func SessionJoinedFrame(room domain.SessionID, state domain.SessionState, self domain.Participant, others []domain.Participant) []byte {
	if others == nil {
		others = []domain.Participant{}
	}
	return Encode(SessionJoined{
		Type:         TypeSessionJoined,
		RoomID:       room,
		State:        state,
		Self:         self,
		Participants: others,
	})
}

func SessionEndedFrame(room domain.SessionID) []byte {
	return Encode(SessionEnded{Type: TypeSessionEnded, RoomID: room})
}

func LeftFrame(room domain.SessionID) []byte {
	return Encode(Left{Type: TypeLeft, RoomID: room})
}

func SignalFrame(typ string, from domain.ParticipantID, payload json.RawMessage) []byte {
	return Encode(SignalRelayed{Type: typ, From: from, Payload: payload})
}

func ChatFrame(msg domain.ChatMessage) []byte {
	return Encode(ChatBroadcast{
		Type:          TypeChat,
		ParticipantID: msg.SenderID,
		Text:          msg.Text,
		Timestamp:     msg.Timestamp.UTC().Truncate(time.Millisecond),
	})
}

// ErrorFrame renders err as a typed failure. Unknown errors are reported as Rejected.
func ErrorFrame(request string, err error) []byte {
	out := Error{Type: TypeError, Request: request}
	var de *domain.Error
	if errors.As(err, &de) {
		out.Code = de.Code
		out.Reason = de.Reason
	} else {
		out.Code = domain.CodeRejected
		out.Reason = err.Error()
	}
	return Encode(out)
}
