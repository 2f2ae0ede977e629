package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"yuzu/rendezvous/internal/client"
	"yuzu/rendezvous/internal/signal"
	"yuzu/rendezvous/internal/types"
)

// peer is one side of the probe: a PeerConnection and its signaling client.
// Candidates that arrive before the remote description are held back.
type peer struct {
	role types.Role
	pc   *webrtc.PeerConnection
	sig  *client.Client
	sid  string

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newPeer(api *webrtc.API, cfg webrtc.Configuration, role types.Role, sig *client.Client, sid string) (*peer, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: new peer connection: %w", role, err)
	}
	p := &peer{role: role, pc: pc, sig: sig, sid: sid}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := sig.ICE(sid, c.ToJSON()); err != nil {
			pterm.Warning.Printfln("%s: send candidate: %v", role, err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		pterm.Debug.Printfln("%s: connection %s", role, s)
		_ = sig.State(sid, s.String())
	})
	return p, nil
}

func (p *peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%s: set remote %s: %w", p.role, desc.Type, err)
	}
	p.mu.Lock()
	p.remoteSet = true
	held := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range held {
		if err := p.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("%s: add held candidate: %w", p.role, err)
		}
	}
	return nil
}

func (p *peer) addCandidate(raw any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("%s: bad candidate: %w", p.role, err)
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(c)
}

// handle applies one relayed event. It returns errPeerClosed when the
// session was torn down.
func (p *peer) handle(ev client.Event) error {
	switch ev.Name {
	case signal.EventOffer:
		sdp, _ := ev.Data["sdp"].(string)
		if err := p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("%s: create answer: %w", p.role, err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("%s: set local answer: %w", p.role, err)
		}
		return p.sig.Answer(p.sid, answer.SDP)
	case signal.EventAnswer:
		sdp, _ := ev.Data["sdp"].(string)
		return p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	case signal.EventICE:
		return p.addCandidate(ev.Data["candidate"])
	case signal.EventState:
		pterm.Debug.Printfln("%s: peer reports %v", p.role, ev.Data["state"])
	case signal.EventPeerJoined:
		pterm.Debug.Printfln("%s: %v joined", p.role, ev.Data["role"])
	case signal.EventClose:
		return errPeerClosed
	}
	return nil
}

// pump feeds events to handle until ctx ends, the connection drops or the
// session closes.
func (p *peer) pump(ctx context.Context, errc chan<- error) {
	for {
		ev, err := p.sig.Next(ctx)
		if err != nil {
			errc <- fmt.Errorf("%s: %w", p.role, err)
			return
		}
		if err := p.handle(ev); err != nil {
			errc <- err
			return
		}
	}
}
