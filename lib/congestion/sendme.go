package congestion

import (
	"crypto/subtle"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/go-i2p/go-circuit/lib/circerr"
)

// sendmeValidator remembers the authentication tag of every SENDME point we
// sent and checks that SENDMEs echo them back in order.
type sendmeValidator struct {
	expected *linkedlistqueue.Queue
}

func newSendmeValidator() *sendmeValidator {
	return &sendmeValidator{expected: linkedlistqueue.New()}
}

func (s *sendmeValidator) record(tag []byte) {
	t := make([]byte, len(tag))
	copy(t, tag)
	s.expected.Enqueue(t)
}

func (s *sendmeValidator) validate(tag []byte) error {
	v, ok := s.expected.Dequeue()
	if !ok {
		return circerr.Protocolf("congestion", "SENDME received with no tag outstanding")
	}
	if tag == nil {
		return circerr.Protocolf("congestion", "unauthenticated SENDME")
	}
	want, ok := v.([]byte)
	if !ok {
		return circerr.Bugf("congestion", "SENDME tag queue holds %T", v)
	}
	if len(want) != len(tag) || subtle.ConstantTimeCompare(want, tag) != 1 {
		return circerr.Protocolf("congestion", "SENDME tag mismatch")
	}
	return nil
}

func (s *sendmeValidator) outstanding() int {
	return s.expected.Size()
}
