package session

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// peer adapts a pion PeerConnection to Negotiator.
type peer struct {
	pc *webrtc.PeerConnection
}

func (p *peer) Offer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return p.setLocal(ctx, offer)
}

func (p *peer) Answer(ctx context.Context) (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return p.setLocal(ctx, answer)
}

// setLocal applies desc and waits for ICE gathering so the returned SDP
// carries every candidate.
func (p *peer) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after gathering")
	}
	return local.SDP, nil
}

func (p *peer) Apply(typ, sdp string) error {
	t := webrtc.NewSDPType(typ)
	if t == webrtc.SDPTypeUnknown {
		return fmt.Errorf("unknown description type %q", typ)
	}
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp})
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
