package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-i2p/go-circuit/lib/circuit"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/layer"
	"github.com/go-i2p/go-circuit/lib/link"
	"github.com/go-i2p/go-circuit/lib/metrics"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// simOptions describes one simulated run.
type simOptions struct {
	Hops        int
	Streams     int
	Cells       int
	Latency     time.Duration
	Keepalive   time.Duration
	Timeout     time.Duration
	MetricsAddr string
}

// simResult is what a run measured.
type simResult struct {
	Elapsed time.Duration
	Bytes   int
	Hops    []congestion.Snapshot
	Padding []uint64
}

func newSimCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run streams over an in-process circuit to simulated relays",
		Long: `Build a circuit to a chain of simulated relays that echo every stream,
push data through it, and report what congestion control converged to.`,
		Example: `  # three hops, eight streams of 2000 cells each, 20ms per hop reply delay
  go-circuit sim --hops 3 --streams 8 --cells 2000 --latency 20ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			opts := simOptions{
				Hops:        v.GetInt("hops"),
				Streams:     v.GetInt("streams"),
				Cells:       v.GetInt("cells"),
				Latency:     v.GetDuration("latency"),
				Keepalive:   v.GetDuration("keepalive"),
				Timeout:     v.GetDuration("timeout"),
				MetricsAddr: v.GetString("metrics-addr"),
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			res, err := runSim(ctx, cfg, opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.Int("hops", 3, "number of hops")
	f.Int("streams", 4, "number of concurrent streams")
	f.Int("cells", 1000, "DATA cells sent on each stream")
	f.Duration("latency", 10*time.Millisecond, "reply delay of the simulated relays")
	f.Duration("keepalive", 0, "run a keepalive padding machine on the first hop with this idle time")
	f.Duration("timeout", 2*time.Minute, "abort the run after this long")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	_ = v.BindPFlags(f)
	return cmd
}

func runSim(ctx context.Context, cfg config.ConfigDefaults, opts simOptions) (simResult, error) {
	if opts.Hops < 1 || opts.Hops > relay.MaxHops {
		return simResult{}, fmt.Errorf("hops must be between 1 and %d", relay.MaxHops)
	}
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr)
		if err != nil {
			return simResult{}, err
		}
		defer stop()
	}

	pathOpts := layer.PathOptions{SendmeInc: cfg.Congestion.Cwnd.SendmeInc, Latency: opts.Latency}
	if cfg.Congestion.Algorithm == config.AlgorithmFixedWindow {
		pathOpts.SendmeInc = cfg.Congestion.Fixed.CircWindowInc
		pathOpts.StreamSendmeInc = cfg.Congestion.Fixed.StreamWindowInc
	}
	path := layer.NewPath(pathOpts)
	keys := make([]layer.Keys, opts.Hops)
	for i := range keys {
		k, err := layer.DeriveKeys([]byte(fmt.Sprintf("simulated hop %d", i)))
		if err != nil {
			return simResult{}, err
		}
		keys[i] = k
		if err := path.AddHop(k); err != nil {
			return simResult{}, err
		}
	}

	near, far := link.Pipe(4096)
	r, h, _, err := circuit.NewReactor(circuit.Options{
		Config: cfg,
		Crypto: layer.NewClientLayers(),
		Sink:   near,
		Source: near,
	})
	if err != nil {
		return simResult{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	reactorDone := make(chan error, 1)
	go func() { reactorDone <- r.Run(ctx) }()
	go func() { _ = path.Run(ctx, far) }()

	res, err := drive(ctx, h, keys, opts)
	if err == nil {
		for i := range keys {
			snap, serr := h.Congestion(ctx, relay.HopNum(i))
			if serr != nil {
				err = serr
				break
			}
			res.Hops = append(res.Hops, snap)
			res.Padding = append(res.Padding, path.Stats(relay.HopNum(i)).PaddingCells.Load())
		}
	}
	_ = h.Shutdown(ctx)
	if rerr := <-reactorDone; err == nil && rerr != nil {
		err = rerr
	}
	log.WithFields(logger.Fields{
		"at":      "runSim",
		"reason":  "simulation_finished",
		"hops":    opts.Hops,
		"streams": opts.Streams,
		"elapsed": res.Elapsed,
	}).WithError(err).Debug("simulation finished")
	return res, err
}

// drive extends the circuit and runs every stream to completion.
func drive(ctx context.Context, h *circuit.Handle, keys []layer.Keys, opts simOptions) (simResult, error) {
	for _, k := range keys {
		if _, err := h.AddHop(ctx, k); err != nil {
			return simResult{}, err
		}
	}
	exit := relay.HopNum(len(keys) - 1)
	if opts.Keepalive > 0 {
		if err := h.SetPadding(ctx, 0, padding.KeepaliveMachine(opts.Keepalive)); err != nil {
			return simResult{}, err
		}
	}

	start := time.Now()
	payload := make([]byte, relay.MaxBodyLen)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Streams; i++ {
		g.Go(func() error {
			s, err := h.BeginStream(gctx, exit, []byte("sim:80\x00"))
			if err != nil {
				return err
			}
			defer s.Close()
			return echoStream(gctx, s, payload, opts.Cells)
		})
	}
	if err := g.Wait(); err != nil {
		return simResult{}, err
	}
	return simResult{
		Elapsed: time.Since(start),
		Bytes:   opts.Streams * opts.Cells * len(payload),
	}, nil
}

func echoStream(ctx context.Context, s *circuit.Stream, payload []byte, cells int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < cells; i++ {
			if err := s.Send(ctx, payload); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for got := 0; got < cells; got++ {
			if _, err := s.Recv(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					return fmt.Errorf("stream %s ended after %d of %d cells", s.ID(), got, cells)
				}
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

func serveMetrics(addr string) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(logger.Fields{
				"at":     "serveMetrics",
				"reason": "metrics_listener_failed",
				"addr":   addr,
			}).WithError(err).Warn("metrics endpoint unavailable")
		}
	}()
	return func() { _ = srv.Close() }, nil
}

func printResult(w io.Writer, res simResult) error {
	secs := res.Elapsed.Seconds()
	if secs <= 0 {
		secs = 1e-9
	}
	if _, err := fmt.Fprintf(w, "moved %d bytes each way in %s (%.1f KiB/s)\n", res.Bytes, res.Elapsed.Round(time.Millisecond), float64(res.Bytes)/1024/secs); err != nil {
		return err
	}
	for i, s := range res.Hops {
		_, err := fmt.Fprintf(w, "%-6s %-11s %-10s cwnd=%-5d inflight=%-5d bdp=%-5d rtt=%-9s min_rtt=%-9s padding=%d\n",
			relay.HopNum(i), s.Algorithm, s.State, s.Cwnd, s.Inflight, s.BDP,
			s.EWMARTT.Round(time.Microsecond), s.MinRTT.Round(time.Microsecond), res.Padding[i])
		if err != nil {
			return err
		}
	}
	return nil
}
