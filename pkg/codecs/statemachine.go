package codecs

import (
	"github.com/pkg/errors"

	"github.com/EchoTools/stingrayTools/pkg/stream"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

// StateMachine is an animation state machine entry. The header and the
// animation id list are decoded; layers stay opaque inside Payload.
type StateMachine struct {
	Unk0               uint32
	LayerCount         uint32
	LayersOffset       uint32
	AnimationCount     uint32
	AnimationIDsOffset uint32
	AnimationIDs       []uint64

	Payload toc.Payload
}

func (s *StateMachine) CloneModel() any {
	out := *s
	out.AnimationIDs = append([]uint64(nil), s.AnimationIDs...)
	out.Payload = s.Payload.Clone()
	return &out
}

func (s *StateMachine) serialize(c *stream.Cursor) error {
	s.Unk0 = c.Uint32(s.Unk0)
	s.LayerCount = c.Uint32(s.LayerCount)
	s.LayersOffset = c.Uint32(s.LayersOffset)
	if c.IsWriting() && int(s.AnimationCount) != len(s.AnimationIDs) {
		return errors.Errorf("%d animation ids, header holds %d", len(s.AnimationIDs), s.AnimationCount)
	}
	s.AnimationCount = c.Uint32(s.AnimationCount)
	s.AnimationIDsOffset = c.Uint32(s.AnimationIDsOffset)
	if c.IsReading() {
		if int(s.AnimationIDsOffset)+8*int(s.AnimationCount) > c.Len() {
			return errors.Wrapf(stream.ErrShortBuffer, "%d animation ids at %#x", s.AnimationCount, s.AnimationIDsOffset)
		}
		s.AnimationIDs = make([]uint64, s.AnimationCount)
	}
	c.Seek(int(s.AnimationIDsOffset))
	c.Uint64s(s.AnimationIDs)
	return c.Err()
}

// AnimationIDs returns the animations a state machine TOC payload
// references.
func AnimationIDs(tocData []byte) ([]uint64, error) {
	var s StateMachine
	if err := s.serialize(stream.NewReader(tocData)); err != nil {
		return nil, err
	}
	return s.AnimationIDs, nil
}

type StateMachineCodec struct{}

func (StateMachineCodec) Decode(fileID uint64, p toc.Payload) (any, error) {
	s := &StateMachine{Payload: p.Clone()}
	if err := s.serialize(stream.NewReader(p.Toc)); err != nil {
		return nil, errors.Wrapf(err, "state machine %d", fileID)
	}
	return s, nil
}

// Encode writes the header and animation ids back over the payload the
// model was decoded from.
func (StateMachineCodec) Encode(fileID uint64, p toc.Payload, model any) (toc.Payload, error) {
	s, ok := model.(*StateMachine)
	if !ok {
		return p, errors.Errorf("state machine %d: unexpected model %T", fileID, model)
	}
	out := s.Payload.Clone()
	c := stream.NewWriterFrom(out.Toc)
	if err := s.serialize(c); err != nil {
		return p, errors.Wrapf(err, "state machine %d", fileID)
	}
	out.Toc = c.Data()
	return out, nil
}
