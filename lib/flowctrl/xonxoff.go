package flowctrl

import (
	"math"
	"time"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
	"golang.org/x/time/rate"
)

// XonXoff is the flow control state of one stream on a hop that uses
// XON/XOFF. The sending half obeys the peer's XON/XOFF; the receiving half
// decides when to send them based on how many bytes we have buffered.
type XonXoff struct {
	// sending half
	paused  bool
	limiter *rate.Limiter
	side    *Sidechannel

	// receiving half
	xoffLimit   uint64
	xonRate     uint64
	changePct   uint64
	ewmaN       uint64
	xoffSent    bool
	advertised  relay.XonRate
	drained     uint64
	drainedAt   time.Time
	drainRate   float64
	sinceXonAdv uint64
}

// NewXonXoff returns the state of a fresh stream. clientSide enables the
// sidechannel checks on XON/XOFF from the peer.
func NewXonXoff(cfg config.FlowControlDefaults, clientSide bool) *XonXoff {
	x := &XonXoff{
		xoffLimit:  cfg.XoffClientBytes(),
		xonRate:    cfg.XonRateBytes(),
		changePct:  uint64(cfg.XonChangePct),
		ewmaN:      uint64(max(cfg.XonEWMACount, 1)),
		advertised: relay.Unlimited,
	}
	if !clientSide {
		x.xoffLimit = cfg.XoffExitBytes()
	}
	if clientSide && cfg.SidechannelMitigation {
		x.side = NewSidechannel(cfg)
	}
	return x
}

// CanSend reports whether n bytes of DATA may be sent at now.
func (x *XonXoff) CanSend(now time.Time, n int) bool {
	if x.paused {
		return false
	}
	return x.limiter == nil || x.limiter.TokensAt(now) >= float64(n)
}

// ReadyAt returns when n bytes may be sent. It returns the zero time while
// the stream is paused by an XOFF, since only an XON can reopen it.
func (x *XonXoff) ReadyAt(now time.Time, n int) time.Time {
	if x.paused {
		return time.Time{}
	}
	if x.limiter == nil {
		return now
	}
	missing := float64(n) - x.limiter.TokensAt(now)
	if missing <= 0 {
		return now
	}
	return now.Add(time.Duration(missing / float64(x.limiter.Limit()) * float64(time.Second)))
}

// NoteDataSent records n bytes of DATA sent at now.
func (x *XonXoff) NoteDataSent(now time.Time, n int) {
	if x.limiter != nil {
		x.limiter.AllowN(now, n)
	}
	if x.side != nil {
		x.side.SentBytes(n)
	}
}

// HandleXoff pauses the sending half.
func (x *XonXoff) HandleXoff() error {
	if x.side != nil {
		if err := x.side.ReceivedXoff(); err != nil {
			return err
		}
	}
	x.paused = true
	return nil
}

// HandleXon resumes the sending half at the advertised rate.
func (x *XonXoff) HandleXon(r relay.XonRate) error {
	if x.side != nil {
		if err := x.side.ReceivedXon(); err != nil {
			return err
		}
	}
	x.paused = false
	if r.Unlimited {
		x.limiter = nil
		return nil
	}
	bps := r.BytesPerSecond()
	burst := int(min(max(bps, relay.MaxBodyLen), math.MaxInt32))
	if x.limiter == nil {
		x.limiter = rate.NewLimiter(rate.Limit(bps), burst)
		return nil
	}
	x.limiter.SetLimit(rate.Limit(bps))
	x.limiter.SetBurst(burst)
	return nil
}

// Limiter returns the byte-rate limiter set by the last XON, or nil when the
// stream is unlimited.
func (x *XonXoff) Limiter() *rate.Limiter { return x.limiter }

// Paused reports whether an XOFF is in effect.
func (x *XonXoff) Paused() bool { return x.paused }

// NoteDrained records that n buffered bytes were handed to the application at
// now. The drain rate advertised by XONs is estimated from these calls.
func (x *XonXoff) NoteDrained(now time.Time, n int) {
	if x.drainedAt.IsZero() {
		x.drainedAt = now
	}
	x.drained += uint64(n)
	x.sinceXonAdv += uint64(n)
	if x.drained < x.xonRate {
		return
	}
	elapsed := now.Sub(x.drainedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	sample := float64(x.drained) / elapsed
	if x.drainRate == 0 {
		x.drainRate = sample
	} else {
		x.drainRate = (2*sample + float64(x.ewmaN-1)*x.drainRate) / float64(x.ewmaN+1)
	}
	x.drained = 0
	x.drainedAt = now
}

// MaybeXoff returns an XOFF for stream id when buffered has grown past the
// XOFF limit and no XOFF is outstanding.
func (x *XonXoff) MaybeXoff(id relay.StreamID, buffered uint64) (relay.Msg, bool) {
	if x.xoffSent || buffered <= x.xoffLimit {
		return relay.Msg{}, false
	}
	x.xoffSent = true
	log.WithFields(logger.Fields{
		"at":       "XonXoff.MaybeXoff",
		"reason":   "buffer_over_limit",
		"stream":   id,
		"buffered": buffered,
	}).Debug("sending XOFF")
	return relay.NewXoff(id), true
}

// MaybeXon returns an XON for stream id when one is due: after an XOFF once
// the buffer is back under the limit, or as an advisory update when the
// drain rate moved by more than the configured percentage.
func (x *XonXoff) MaybeXon(id relay.StreamID, buffered uint64) (relay.Msg, bool) {
	current := x.currentRate()
	if x.xoffSent {
		if buffered > x.xoffLimit {
			return relay.Msg{}, false
		}
		x.xoffSent = false
		return x.sendXon(id, current, "buffer_drained"), true
	}
	if x.sinceXonAdv < x.xonRate || !x.rateChanged(current) {
		return relay.Msg{}, false
	}
	return x.sendXon(id, current, "drain_rate_changed"), true
}

func (x *XonXoff) sendXon(id relay.StreamID, r relay.XonRate, reason string) relay.Msg {
	x.advertised = r
	x.sinceXonAdv = 0
	log.WithFields(logger.Fields{
		"at":     "XonXoff.MaybeXon",
		"reason": reason,
		"stream": id,
		"kbps":   r.Kbps,
	}).Debug("sending XON")
	return relay.NewXon(id, r)
}

func (x *XonXoff) currentRate() relay.XonRate {
	if x.drainRate <= 0 {
		return relay.Unlimited
	}
	kbps := x.drainRate * 8 / 1000
	if kbps >= math.MaxUint32 {
		return relay.Unlimited
	}
	return relay.RateKbps(uint32(max(kbps, 1)))
}

func (x *XonXoff) rateChanged(current relay.XonRate) bool {
	prev := x.advertised
	if prev.Unlimited || current.Unlimited {
		return prev.Unlimited != current.Unlimited
	}
	diff := uint64(prev.Kbps) - uint64(current.Kbps)
	if current.Kbps > prev.Kbps {
		diff = uint64(current.Kbps) - uint64(prev.Kbps)
	}
	return diff*100 > uint64(prev.Kbps)*x.changePct
}
