package congestion

import (
	"os"
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type vectorFile struct {
	Scenarios []vectorScenario `yaml:"scenarios"`
}

type vectorScenario struct {
	Name  string       `yaml:"name"`
	Sent  int          `yaml:"sent"`
	Fill  bool         `yaml:"fill"`
	Steps []vectorStep `yaml:"steps"`
}

type vectorStep struct {
	RTTMillis int        `yaml:"rtt_ms"`
	Blocked   bool       `yaml:"blocked"`
	QueueLen  uint32     `yaml:"queue_len"`
	Want      vectorWant `yaml:"want"`
}

type vectorWant struct {
	Cwnd     uint32 `yaml:"cwnd"`
	Inflight uint32 `yaml:"inflight"`
	Full     bool   `yaml:"full"`
	State    string `yaml:"state"`
	BDP      uint32 `yaml:"bdp"`
	MinRTTUs int64  `yaml:"min_rtt_us"`
}

// vectorSender feeds DATA cells into a controller, stamping every SENDME
// point at the same instant.
type vectorSender struct {
	c    *Controller
	at   time.Time
	tags [][]byte
}

func (s *vectorSender) send(t *testing.T) {
	t.Helper()
	require.True(t, s.c.CanSend(), "cell after %d points", len(s.tags))
	if s.c.IsNextCellSendme() {
		tag := []byte{byte(len(s.tags)), byte(len(s.tags) >> 8), 0xBB, 0xCC, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
		s.tags = append(s.tags, tag)
		s.c.NoteSendmePoint(s.at, tag)
	}
	s.c.NoteDataSent()
}

func (s *vectorSender) fill(t *testing.T) {
	t.Helper()
	for s.c.CanSend() {
		s.send(t)
	}
}

func loadVectors(t *testing.T) vectorFile {
	t.Helper()
	raw, err := os.ReadFile("testdata/vegas_vectors.yaml")
	require.NoError(t, err)
	var f vectorFile
	require.NoError(t, yaml.Unmarshal(raw, &f))
	require.NotEmpty(t, f.Scenarios)
	return f
}

// TestVegasVectors replays hand-computed Vegas traces.
func TestVegasVectors(t *testing.T) {
	for _, sc := range loadVectors(t).Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			c := NewController(config.Defaults().Congestion, false)
			t0 := time.Unix(1_700_000_000, 0)

			s := &vectorSender{c: c, at: t0}
			for i := 0; i < sc.Sent; i++ {
				s.send(t)
			}

			for i, step := range sc.Steps {
				if sc.Fill {
					s.fill(t)
				}
				require.Less(t, i, len(s.tags), "step %d has no SENDME point", i)
				now := t0.Add(time.Duration(step.RTTMillis) * time.Millisecond)
				err := c.HandleSendme(now, s.tags[i], Signals{ChannelBlocked: step.Blocked, OutboundQueueLen: step.QueueLen})
				require.NoError(t, err, "step %d", i)

				snap := c.Snapshot()
				assert.Equal(t, step.Want.Cwnd, snap.Cwnd, "step %d cwnd", i)
				assert.Equal(t, step.Want.Inflight, snap.Inflight, "step %d inflight", i)
				assert.Equal(t, step.Want.Full, snap.Full, "step %d full", i)
				assert.Equal(t, step.Want.State, snap.State.String(), "step %d state", i)
				assert.Equal(t, step.Want.BDP, snap.BDP, "step %d bdp", i)
				if step.Want.MinRTTUs != 0 {
					assert.Equal(t, step.Want.MinRTTUs, snap.MinRTT.Microseconds(), "step %d min rtt", i)
				}
			}
		})
	}
}

// TestVegasSteadyStateBounds drives a filled window through RTT swings and
// blocked spells and checks that steady state never drops below the minimum
// window, grows by at most one increment per SENDME, and only moves the
// window on update boundaries.
func TestVegasSteadyStateBounds(t *testing.T) {
	cfg := config.Defaults().Congestion
	c := NewController(cfg, false)
	t0 := time.Unix(1_700_000_000, 0)
	s := &vectorSender{c: c, at: t0}

	type phase struct {
		rtt     time.Duration
		blocked bool
		n       int
	}
	phases := []phase{
		{100 * time.Millisecond, false, 6},
		{100 * time.Millisecond, true, 40},
		{400 * time.Millisecond, false, 40},
		{100 * time.Millisecond, false, 40},
		{800 * time.Millisecond, true, 40},
		{150 * time.Millisecond, false, 60},
	}

	vegas := c.Algorithm().(*Vegas)
	step := 0
	for _, ph := range phases {
		for j := 0; j < ph.n; j++ {
			s.fill(t)
			before := c.Snapshot()
			due := vegas.sendmeUntilUpdate <= 1
			sig := Signals{ChannelBlocked: ph.blocked}
			require.NoError(t, c.HandleSendme(t0.Add(ph.rtt), s.tags[step], sig), "step %d", step)
			after := c.Snapshot()
			step++

			if before.State != Steady {
				continue
			}
			assert.GreaterOrEqual(t, after.Cwnd, cfg.Cwnd.Min, "step %d", step)
			if after.Cwnd > before.Cwnd {
				assert.LessOrEqual(t, after.Cwnd-before.Cwnd, cfg.Cwnd.Increment, "step %d", step)
			}
			if !due {
				assert.Equal(t, before.Cwnd, after.Cwnd, "step %d moved between updates", step)
			}
		}
	}
	assert.Equal(t, Steady, c.State())
}
