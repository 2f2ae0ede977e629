package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"yuzu/rendezvous/internal/client"
	"yuzu/rendezvous/internal/logging"
	"yuzu/rendezvous/internal/types"
)

var errPeerClosed = errors.New("session closed by peer")

type probeOptions struct {
	URL     string
	PIN     string
	STUN    []string
	Timeout time.Duration
	Debug   bool
}

func runProbe(parent context.Context, o probeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, o.Timeout)
	defer cancel()

	level := "warn"
	if o.Debug {
		level = "debug"
		pterm.EnableDebugMessages()
	}
	se := webrtc.SettingEngine{LoggerFactory: logging.NewFactory(level, os.Stderr)}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	cfg := webrtc.Configuration{}
	if len(o.STUN) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: o.STUN}}
	}

	pterm.DefaultSection.Println("Signaling")
	emSig, err := client.Dial(ctx, o.URL, nil)
	if err != nil {
		return err
	}
	defer emSig.Disconnect()
	rxSig, err := client.Dial(ctx, o.URL, nil)
	if err != nil {
		return err
	}
	defer rxSig.Disconnect()

	sid, err := emSig.CreateSession(ctx, o.PIN)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	pterm.Info.Printfln("session %s", sid)
	if _, err := emSig.Join(ctx, sid, o.PIN, types.RoleEmitter); err != nil {
		return fmt.Errorf("join as emitter: %w", err)
	}
	status, err := rxSig.Join(ctx, sid, o.PIN, types.RoleReceiver)
	if err != nil {
		return fmt.Errorf("join as receiver: %w", err)
	}
	pterm.Success.Printfln("paired (%s)", status)

	em, err := newPeer(api, cfg, types.RoleEmitter, emSig, sid)
	if err != nil {
		return err
	}
	defer em.pc.Close()
	rx, err := newPeer(api, cfg, types.RoleReceiver, rxSig, sid)
	if err != nil {
		return err
	}
	defer rx.pc.Close()

	pong := make(chan string, 1)
	rx.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(m webrtc.DataChannelMessage) {
			_ = dc.SendText("pong:" + string(m.Data))
		})
	})
	dc, err := em.pc.CreateDataChannel("probe", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() { _ = dc.SendText("ping") })
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		select {
		case pong <- string(m.Data):
		default:
		}
	})

	errc := make(chan error, 2)
	go em.pump(ctx, errc)
	go rx.pump(ctx, errc)

	pterm.DefaultSection.Println("Negotiation")
	start := time.Now()
	offer, err := em.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := em.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := emSig.Offer(sid, offer.SDP); err != nil {
		return err
	}

	select {
	case reply := <-pong:
		pterm.Success.Printfln("data channel open, got %q after %s", reply, time.Since(start).Round(time.Millisecond))
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("negotiation: %w", ctx.Err())
	}

	if err := emSig.Close(sid); err != nil {
		return err
	}
	select {
	case err := <-errc:
		if !errors.Is(err, errPeerClosed) {
			return err
		}
		pterm.Success.Println("receiver saw close")
	case <-ctx.Done():
		return fmt.Errorf("waiting for close: %w", ctx.Err())
	}
	return nil
}
